package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/halcyongrid/accountd/accounts"
	"github.com/halcyongrid/accountd/internal/config"
	"github.com/halcyongrid/accountd/internal/logging"
	"github.com/halcyongrid/accountd/internal/settings"
)

var Version = "dev"

// profilePath is the authenticated endpoint used to exercise the token.
const profilePath = "/api/v1/user/profile"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("accountd starting",
		slog.String("version", Version),
		slog.String("server", cfg.ServerURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openSettings(cfg)
	if err != nil {
		return fmt.Errorf("opening settings: %w", err)
	}
	defer store.Close()

	transport := accounts.NewHTTPTransport(nil, logger)

	// The manager variable is captured by the hooks before it is
	// assigned; hooks only fire from requests issued after NewManager
	// returns, so they never observe it nil.
	var manager *accounts.Manager

	hooks := accounts.Hooks{
		AuthenticationRequired: func() {
			if cfg.Username == "" {
				logger.Warn("authentication required but no credentials configured")
				return
			}

			logger.Info("authentication required, requesting access token")
			manager.RequestAccessToken(cfg.Username, cfg.Password)
		},
		TokenReceived: func(root string) {
			logger.Info("received access token", slog.String("root", root))
		},
	}

	manager, err = accounts.NewManager(store.Group(accounts.SettingsGroup), transport, hooks, logger)
	if err != nil {
		return fmt.Errorf("initializing account manager: %w", err)
	}

	manager.SetRootAddress(cfg.ServerURL)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return profileLoop(gctx, manager, cfg.ProfileRefresh, logger)
	})

	return g.Wait()
}

// openSettings opens the settings database from config, falling back to
// the default location when none is set.
func openSettings(cfg *config.Config) (*settings.Store, error) {
	if cfg.StateDB != "" {
		return settings.OpenAt(cfg.StateDB)
	}

	return settings.Open()
}

// profileLoop periodically issues an authenticated profile request. The
// first pass usually has no token yet, which triggers the
// authentication-required hook and from there the password grant.
func profileLoop(ctx context.Context, manager *accounts.Manager, every time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	cb := accounts.Callbacks{
		OnSuccess: func(doc gjson.Result) {
			logger.Info("profile refreshed",
				slog.String("username", doc.Get("data.user.username").String()))
		},
		OnError: func(code int, message string) {
			logger.Warn("profile request failed",
				slog.Int("code", code),
				slog.String("message", message))
		},
	}

	for {
		manager.AuthenticatedRequest(profilePath, http.MethodGet, cb, nil)

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
		}
	}
}
