package accounts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SettingsGroup is the settings namespace holding persisted accounts.
const SettingsGroup = "accounts"

// slashSentinel replaces "//" in root addresses when they are used as
// settings keys, because the original settings format reserved slashes
// for group separators. The transform must round-trip exactly.
const slashSentinel = "slashslash"

// EscapeRootAddress converts a root address into its settings-key form.
func EscapeRootAddress(root string) string {
	return strings.ReplaceAll(root, "//", slashSentinel)
}

// UnescapeRootAddress recovers a root address from its settings-key form.
func UnescapeRootAddress(key string) string {
	return strings.ReplaceAll(key, slashSentinel, "//")
}

// Settings is the persistent key-value namespace backing the token
// store. Put must be durable before it returns.
type Settings interface {
	Keys() ([]string, error)
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

// TokenStore maps account-server root addresses to their account info.
// Every write is mirrored into the settings namespace so tokens survive
// process restarts. Entries are only ever overwritten, never deleted.
type TokenStore struct {
	mu       sync.RWMutex
	accounts map[string]AccountInfo

	settings Settings
	logger   *slog.Logger
}

// NewTokenStore creates an empty store backed by settings. Call Load to
// populate it from persisted state.
func NewTokenStore(settings Settings, logger *slog.Logger) *TokenStore {
	return &TokenStore{
		accounts: make(map[string]AccountInfo),
		settings: settings,
		logger:   logger,
	}
}

// Load reads every persisted account into memory, reversing the
// key-escaping transform to recover each root address. Entries that
// cannot be read or decoded are skipped. Call once at startup.
func (s *TokenStore) Load() error {
	keys, err := s.settings.Keys()
	if err != nil {
		return fmt.Errorf("listing persisted accounts: %w", err)
	}

	for _, key := range keys {
		root := UnescapeRootAddress(key)

		value, err := s.settings.Get(key)
		if err != nil || value == nil {
			s.logger.Warn("skipping unreadable account entry", slog.String("key", key), slog.Any("error", err))
			continue
		}

		var info AccountInfo
		if err := json.Unmarshal(value, &info); err != nil {
			s.logger.Warn("skipping malformed account entry", slog.String("key", key), slog.Any("error", err))
			continue
		}

		s.mu.Lock()
		s.accounts[root] = info
		s.mu.Unlock()

		s.logger.Info("found a stored access token", slog.String("root", root))
	}

	return nil
}

// Get returns the stored info for root. A missing entry yields the zero
// AccountInfo, whose token is invalid.
func (s *TokenStore) Get(root string) AccountInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.accounts[root]
}

// Put inserts or overwrites the entry for root and persists it. The
// durable write completes before Put returns, so a Get or IsValid that
// follows observes the new token even across a restart.
func (s *TokenStore) Put(root string, info AccountInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encoding account for %s: %w", root, err)
	}

	s.mu.Lock()
	s.accounts[root] = info
	s.mu.Unlock()

	if err := s.settings.Put(EscapeRootAddress(root), data); err != nil {
		return fmt.Errorf("persisting account for %s: %w", root, err)
	}

	return nil
}

// IsValid reports whether root has a non-empty, unexpired token.
func (s *TokenStore) IsValid(root string) bool {
	return s.Get(root).AccessToken.Valid(time.Now())
}
