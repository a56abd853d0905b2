package accounts

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSettings is an in-memory Settings implementation.
type fakeSettings struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: make(map[string][]byte)}
}

func (f *fakeSettings) Keys() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}

	return keys, nil
}

func (f *fakeSettings) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.values[key], nil
}

func (f *fakeSettings) Put(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.values[key] = append([]byte(nil), value...)

	return nil
}

const testRoot = "https://metaverse.example.com"

// newTestManager builds a Manager on a mocked transport and an
// in-memory settings namespace, rooted at testRoot.
func newTestManager(t *testing.T, hooks Hooks) (*Manager, *MockTransport) {
	t.Helper()

	ctrl := gomock.NewController(t)
	mock := NewMockTransport(ctrl)

	m, err := NewManager(newFakeSettings(), mock, hooks, testLogger())
	require.NoError(t, err)

	m.SetRootAddress(testRoot)

	return m, mock
}

// seedToken stores a valid token for root so authenticated requests can
// be issued.
func seedToken(t *testing.T, m *Manager, root, token string) {
	t.Helper()

	err := m.store.Put(root, AccountInfo{
		AccessToken: AccessToken{
			Token:     token,
			TokenType: "Bearer",
			ExpiresAt: time.Now().Add(time.Hour),
		},
	})
	require.NoError(t, err)
}
