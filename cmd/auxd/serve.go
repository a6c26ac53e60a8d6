package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/auxproto/auxd/internal/auth"
	"github.com/auxproto/auxd/internal/browsermanager"
	"github.com/auxproto/auxd/internal/config"
	"github.com/auxproto/auxd/internal/connection"
	"github.com/auxproto/auxd/internal/driver"
	"github.com/auxproto/auxd/internal/schema"
	"github.com/auxproto/auxd/internal/security"
	"github.com/auxproto/auxd/internal/server"
	"github.com/auxproto/auxd/internal/sessionlog"
)

func newServeCmd() *cobra.Command {
	var (
		port        int
		headless    bool
		apiKey      string
		enableAuth  bool
		secLevel    string
		logPath     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket browser-automation command server",
		Example: `  auxd serve
  # Starts server on default port 8080, headless browser

  auxd serve --port 9000 --headless=false
  # Starts server on port 9000 with a visible browser`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default().WithSecurityLevel(config.SecurityLevel(secLevel))
			cfg.Server.Port = port
			cfg.Browser.Headless = headless
			cfg.Server.EnableAuth = enableAuth
			cfg.Server.APIKey = apiKey
			if logPath != "" {
				cfg.Logging.SessionLogPath = logPath
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			var runErr error
			WithCleanup(func() {
				runErr = runServer(cfg)
			})
			if runErr != nil {
				fmt.Fprintf(os.Stderr, "auxd: %v\n", runErr)
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run browser headless")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Shared secret required of clients when auth is enabled")
	cmd.Flags().BoolVar(&enableAuth, "enable-auth", true, "Require api_key on the first message of each connection")
	cmd.Flags().StringVar(&secLevel, "security-level", "production", "Security preset: production, development, or testing")
	cmd.Flags().StringVar(&logPath, "session-log", "", "Path to the session event log (default: session.log)")
	return cmd
}

// runServer wires every component from C1-C10 together and blocks until a
// termination signal arrives, then drains per the ordered shutdown in spec
// §4.14.
func runServer(cfg config.Config) error {
	logger := sessionlog.New(cfg.Logging.SessionLogConfig())

	// Wiring a real headless-browser driver is outside this repo's scope
	// (spec §1, internal/driver's package doc): driver.Driver is the seam a
	// deployment supplies its own implementation through. FakeDriver keeps
	// auxd runnable end-to-end against its own in-memory pages until one is
	// wired in.
	drv := driver.NewFakeDriver()

	limiter := cfg.Server.RateLimiter()
	deps := connection.Deps{
		Limiter:      limiter,
		Auth:         auth.New(cfg.Server.EnableAuth, cfg.Server.APIKey),
		Sanitizer:    security.NewSanitizer(cfg.Security.EnableInputSanitization, cfg.Security.SanitizerLimits()),
		DomainPolicy: security.NewDomainPolicy(cfg.Security.AllowedDomains, cfg.Security.BlockedDomains),
		Logger:       logger,
		Limits: schema.Limits{
			MaxSelectorLength: cfg.Security.MaxSelectorLength,
			MaxURLLength:      cfg.Security.MaxURLLength,
			MaxTextLength:     cfg.Security.MaxTextInputLength,
			AllowCustomJS:     cfg.Security.AllowCustomJS,
		},
		Registry: connection.NewSessionRegistry(),
	}

	if cfg.Browser.NoSandbox {
		logger.Warn("security-degrading browser flag enabled", map[string]interface{}{"flag": "--no-sandbox"})
	}
	if cfg.Browser.DisableWebSecurity {
		logger.Warn("security-degrading browser flag enabled", map[string]interface{}{"flag": "--disable-web-security"})
	}

	deps.Manager = browsermanager.New(drv, logger, limiter, cfg.Browser.BrowserManagerOptions())

	srvOpts := server.DefaultOptions()
	srvOpts.Host = cfg.Server.Host
	srvOpts.Port = cfg.Server.Port
	srvOpts.MaxConcurrentConns = cfg.Server.MaxConcurrentConns
	srvOpts.PingInterval = cfg.Server.PingInterval
	srvOpts.PingTimeout = cfg.Server.PingTimeout
	srvOpts.MaxMessageSize = int64(cfg.Server.MaxMessageSize)

	srv := server.New(srvOpts, deps, logger)

	// Registered instead of called inline so the ordered shutdown in spec
	// §4.14 still runs if something panics past this point during the
	// server's lifetime — WithCleanup drains the cleanup list whether
	// runServer returns or panics.
	OnCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "auxd: shutdown: %v\n", err)
		}
	})

	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	fmt.Printf("auxd listening on ws://%s:%d\n", cfg.Server.Host, srv.Port())
	fmt.Println("Press Ctrl+C to stop...")

	WaitForSignal()

	fmt.Println("\nShutting down...")
	return nil
}
