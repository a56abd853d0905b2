// Package accounts implements the authenticated-request core for talking
// to a metaverse account server. A Manager owns the access tokens for
// one or more servers, issues HTTP requests only when a valid token is
// present, correlates asynchronous responses back to caller-supplied
// callbacks, and persists tokens across restarts through a settings
// namespace.
//
// The Manager never returns request errors to callers. Outcomes surface
// through the registered callbacks, the notification hooks, or the logs.
package accounts

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// tokenPath is the account server's password-grant endpoint.
const tokenPath = "/oauth/token"

// Hooks are the notifications a Manager raises. Nil hooks are skipped.
type Hooks struct {
	// AuthenticationRequired fires when a request needed a valid access
	// token and none was present. The host is expected to respond by
	// calling RequestAccessToken with credentials; nothing is retried
	// automatically.
	AuthenticationRequired func()

	// TokenReceived fires after a successful grant, with the root
	// address the fresh token was stored under.
	TokenReceived func(rootAddress string)
}

// Manager is the process-wide entry point for authenticated requests
// against an account server. It owns one TokenStore and one
// CallbackRegistry; completions may arrive on transport goroutines, so
// both guard their state and the Manager guards its own.
type Manager struct {
	mu          sync.Mutex
	rootAddress string
	username    string

	store     *TokenStore
	registry  *CallbackRegistry
	transport Transport
	hooks     Hooks
	logger    *slog.Logger
}

// NewManager creates a Manager backed by the given settings namespace
// and transport, loading any persisted tokens before returning.
func NewManager(settings Settings, transport Transport, hooks Hooks, logger *slog.Logger) (*Manager, error) {
	store := NewTokenStore(settings, logger)
	if err := store.Load(); err != nil {
		return nil, err
	}

	return &Manager{
		store:     store,
		registry:  NewCallbackRegistry(logger),
		transport: transport,
		hooks:     hooks,
		logger:    logger,
	}, nil
}

// RootOf strips path and query from u, leaving the scheme+host+port
// root address used to key stored tokens.
func RootOf(u *url.URL) string {
	root := url.URL{Scheme: u.Scheme, Host: u.Host}
	return root.String()
}

// SetRootAddress changes the account server all subsequent requests are
// issued against. A change clears the cached username, since profile
// information belongs to the old server; the old server's token stays in
// the store for future reuse.
func (m *Manager) SetRootAddress(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rootAddress == addr {
		return
	}

	m.rootAddress = addr
	m.username = ""

	m.logger.Info("root address for authentication changed", slog.String("root", addr))
}

// RootAddress returns the currently configured account-server root.
func (m *Manager) RootAddress() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.rootAddress
}

// Username returns the cached profile username for the current root
// address, or "" when unknown.
func (m *Manager) Username() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.username
}

// HasValidAccessToken reports whether the current root address has a
// non-empty, unexpired token in the store.
func (m *Manager) HasValidAccessToken() bool {
	root := m.RootAddress()
	if !m.store.IsValid(root) {
		m.logger.Debug("an access token is required for requests", slog.String("root", root))
		return false
	}

	return true
}

// CheckAndSignalAccessToken reports token validity like
// HasValidAccessToken, additionally firing the authentication-required
// hook when no valid token is present.
func (m *Manager) CheckAndSignalAccessToken() bool {
	ok := m.HasValidAccessToken()
	if !ok && m.hooks.AuthenticationRequired != nil {
		m.hooks.AuthenticationRequired()
	}

	return ok
}

// AuthenticatedRequest submits method path against the current root
// address with the stored access token appended as a query parameter,
// and registers cb to receive the outcome. Without a valid token
// nothing is submitted; the authentication-required hook fires instead.
//
// GET requests carry no body. POST requests send body form-encoded.
// Other methods are rejected with a log, never misrouted.
func (m *Manager) AuthenticatedRequest(path, method string, cb Callbacks, body []byte) {
	if !m.CheckAndSignalAccessToken() {
		return
	}

	root := m.RootAddress()

	requestURL, err := url.Parse(root)
	if err != nil {
		m.logger.Error("invalid root address", slog.String("root", root), slog.Any("error", err))
		return
	}

	requestURL.Path = path
	requestURL.RawQuery = url.Values{"access_token": {m.store.Get(root).AccessToken.Token}}.Encode()

	var req *http.Request

	switch method {
	case http.MethodGet:
		req, err = http.NewRequest(http.MethodGet, requestURL.String(), nil)
	case http.MethodPost:
		req, err = http.NewRequest(http.MethodPost, requestURL.String(), bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		m.logger.Warn("unsupported method for authenticated request",
			slog.String("method", method),
			slog.String("path", path))

		return
	}

	if err != nil {
		m.logger.Error("building authenticated request", slog.String("path", path), slog.Any("error", err))
		return
	}

	// Do not log the full URL; the query carries the access token.
	m.logger.Debug("making an authenticated request",
		slog.String("root", root),
		slog.String("path", path))

	id := uuid.New()
	m.registry.Register(id, cb)
	m.transport.Submit(id, req, m.complete)
}

// complete routes a transport completion into the callback registry.
func (m *Manager) complete(c Completion) {
	if c.Err != nil {
		m.registry.ResolveError(c.ID, c.Status, c.Err.Error())
		return
	}

	m.registry.ResolveSuccess(c.ID, c.Body)
}

// RequestAccessToken performs the password grant against the current
// root address. It returns immediately; the outcome arrives later. On
// success the fresh token is stored and the token-received hook fires.
// Denied, malformed, and failed grants are logged and leave all state
// untouched; there is no automatic retry.
func (m *Manager) RequestAccessToken(login, password string) {
	root := m.RootAddress()

	grantURL, err := url.Parse(root)
	if err != nil {
		m.logger.Error("invalid root address", slog.String("root", root), slog.Any("error", err))
		return
	}

	grantURL.Path = tokenPath

	form := url.Values{
		"grant_type": {"password"},
		"username":   {login},
		"password":   {password},
	}

	req, err := http.NewRequest(http.MethodPost, grantURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		m.logger.Error("building grant request", slog.String("root", root), slog.Any("error", err))
		return
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	m.logger.Info("requesting an access token", slog.String("root", root), slog.String("username", login))

	m.transport.Submit(uuid.New(), req, m.grantFinished)
}

// grantFinished handles the completion of a password-grant request.
func (m *Manager) grantFinished(c Completion) {
	doc := gjson.ParseBytes(c.Body)

	// The server reports denials as an error key in the body, typically
	// alongside a 4xx status; check the body before the transport error.
	if doc.Get("error").Exists() {
		m.logger.Warn("error in response for password grant",
			slog.String("error", doc.Get("error").String()),
			slog.String("description", doc.Get("error_description").String()))

		return
	}

	if c.Err != nil {
		m.logger.Warn("password grant request failed", slog.Any("error", c.Err))
		return
	}

	info, err := AccountFromGrant(doc, time.Now())
	if err != nil {
		m.logger.Warn("password grant response missing one or more expected values")
		return
	}

	// Key the fresh token under the response URL's root, not the locally
	// configured one; they can diverge after a redirect.
	root := RootOf(c.URL)

	if err := m.store.Put(root, info); err != nil {
		m.logger.Error("storing access token", slog.String("root", root), slog.Any("error", err))
		return
	}

	m.logger.Info("stored an account with access token", slog.String("root", root))

	if username := info.Username(); username != "" {
		m.mu.Lock()
		if m.rootAddress == root {
			m.username = username
		}
		m.mu.Unlock()
	}

	if m.hooks.TokenReceived != nil {
		m.hooks.TokenReceived(root)
	}
}
