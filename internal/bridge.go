package internal

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/auth-bridge/internal/config"
	"github.com/dgellow/auth-bridge/internal/credential"
	"github.com/dgellow/auth-bridge/internal/githubauth"
	"github.com/dgellow/auth-bridge/internal/log"
	"github.com/dgellow/auth-bridge/internal/server"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// Bridge is the assembled application: GitHub client, credential issuer
// and HTTP server built from one configuration.
type Bridge struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
}

// NewBridge wires every component from cfg. Key material is parsed once
// here and never reloaded.
func NewBridge(ctx context.Context, cfg config.Config) (*Bridge, error) {
	signingKey, err := credential.LoadSigningKey(string(cfg.SigningKey))
	if err != nil {
		return nil, fmt.Errorf("loading signing key: %w", err)
	}

	keys, err := credential.NewKeySet(cfg.PublicKeys, signingKey)
	if err != nil {
		return nil, fmt.Errorf("building key set: %w", err)
	}

	github, err := githubauth.NewClient(githubauth.Config{
		ClientID:     cfg.GitHub.ClientID,
		ClientSecret: string(cfg.GitHub.ClientSecret),
		RedirectURI:  cfg.GitHub.RedirectURI,
		AuthorizeURL: cfg.GitHub.AuthorizeURL,
		TokenURL:     cfg.GitHub.TokenURL,
		APIBaseURL:   cfg.GitHub.APIBaseURL,
		HTTPClient:   &http.Client{Timeout: cfg.UpstreamTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("creating GitHub client: %w", err)
	}

	handlers := server.NewAuthHandlers(server.AuthHandlersConfig{
		GitHub:         github,
		Issuer:         credential.NewIssuer(signingKey, cfg.Issuer, cfg.DefaultExpire),
		Keys:           keys,
		StateSecret:    []byte(cfg.StateSecret),
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultExpire:  cfg.DefaultExpire,
	})
	handler := server.NewRouter(handlers, cfg.AllowedOrigins)

	log.LogInfoWithFields("bridge", "Bridge configured", map[string]any{
		"issuer":          cfg.Issuer,
		"kid":             signingKey.KID,
		"published_keys":  len(keys.JWKS().Keys),
		"allowed_origins": cfg.AllowedOrigins,
		"redirect_uri":    cfg.GitHub.RedirectURI,
	})

	return &Bridge{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Addr),
	}, nil
}

// Handler returns the bridge's HTTP handler.
func (b *Bridge) Handler() http.Handler {
	return b.handler
}

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// server fails, then shuts down gracefully.
func (b *Bridge) Run(ctx context.Context) error {
	log.LogInfoWithFields("bridge", "Starting auth bridge", map[string]any{
		"addr": b.config.Addr,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("bridge", "Starting graceful shutdown", map[string]any{
			"reason":  context.Cause(gctx).Error(),
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return b.httpServer.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.LogErrorWithFields("bridge", "Shutdown after error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("bridge", "Shutdown complete", nil)
	return nil
}
