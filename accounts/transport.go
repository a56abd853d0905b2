package accounts

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// clientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	clientTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxResponseBytes = 1024 * 1024
)

// Completion is the outcome of one submitted request. URL is the final
// request URL after redirects. Err is set for network-level failures and
// for HTTP error statuses; Body carries whatever the server returned,
// which may be present even when Err is set.
type Completion struct {
	ID     RequestID
	URL    *url.URL
	Status int
	Body   []byte
	Err    error
}

// Transport submits HTTP requests and reports their outcome
// asynchronously. Submit returns without blocking; deliver is invoked
// exactly once per submission, from a separate goroutine. There is no
// cancellation: a submitted request runs to completion or error under
// the transport's own timeout.
type Transport interface {
	Submit(id RequestID, req *http.Request, deliver func(Completion))
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the access_token
// query parameter and credentials from leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// HTTPTransport issues submitted requests over net/http, one goroutine
// per request.
type HTTPTransport struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPTransport creates a transport with the given http.Client. If
// client is nil, a client with a 30-second timeout and same-host
// redirect policy is used.
func NewHTTPTransport(client *http.Client, logger *slog.Logger) *HTTPTransport {
	if client == nil {
		client = &http.Client{
			Timeout:       clientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &HTTPTransport{client: client, logger: logger}
}

// Submit issues req in the background and delivers its completion.
func (t *HTTPTransport) Submit(id RequestID, req *http.Request, deliver func(Completion)) {
	t.logger.Debug("submitting request",
		slog.String("request", id.String()),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path))

	go func() {
		resp, err := t.client.Do(req)
		if err != nil {
			deliver(Completion{
				ID:  id,
				URL: req.URL,
				Err: fmt.Errorf("sending request to %s: %w", req.URL.Path, err),
			})

			return
		}
		defer resp.Body.Close()

		// Cap response reads at 1MB. Account-server responses are
		// small JSON payloads.
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

		finalURL := resp.Request.URL

		if err != nil {
			deliver(Completion{
				ID:     id,
				URL:    finalURL,
				Status: resp.StatusCode,
				Err:    fmt.Errorf("reading response from %s: %w", req.URL.Path, err),
			})

			return
		}

		if resp.StatusCode >= http.StatusBadRequest {
			deliver(Completion{
				ID:     id,
				URL:    finalURL,
				Status: resp.StatusCode,
				Body:   body,
				Err:    fmt.Errorf("server returned status %d: %s", resp.StatusCode, sanitizeResponseBody(body)),
			})

			return
		}

		deliver(Completion{ID: id, URL: finalURL, Status: resp.StatusCode, Body: body})
	}()
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}
	// Ensure valid UTF-8 and replace control characters.
	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}
