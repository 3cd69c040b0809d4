package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"zeitachse/internal/capture"
	"zeitachse/internal/config"
	appLog "zeitachse/internal/log"
	"zeitachse/internal/web"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the calendar UI/API and refresh the preview graphic on a schedule.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config if set)"},
			&cli.BoolFlag{Name: "no-refresh", Usage: "Disable the scheduled preview re-render"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadAppConfig(c)
			if err != nil {
				return err
			}
			if listen := c.String("listen"); listen != "" {
				cfg.Listen = listen
			}

			appLog.Info("zeitachse starting", "version", version)
			appLog.Info("effective config",
				"listen", cfg.Listen,
				"data_dir", cfg.DataDir,
				"canon", cfg.CanonConfigPath(),
				"refresh", cfg.RefreshCron,
				"deploy_services", len(cfg.Deploy.Services),
			)

			s, err := web.NewServer(cfg)
			if err != nil {
				return err
			}

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				appLog.Info("signal received, shutting down", "signal", sig.String())
				cancel()
			}()

			srv := &http.Server{
				Addr:    cfg.Listen,
				Handler: s.Handler(),
			}

			errCh := make(chan error, 1)
			go func() {
				appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
				errCh <- srv.ListenAndServe()
			}()

			var scheduler *cron.Cron
			if !c.Bool("no-refresh") {
				scheduler = cron.New()
				if _, err := scheduler.AddFunc(cfg.RefreshCron, func() {
					if err := renderPreview(ctx, s, cfg); err != nil {
						appLog.Error("scheduled preview render failed", err)
					}
				}); err != nil {
					return fmt.Errorf("invalid refresh schedule %q: %w", cfg.RefreshCron, err)
				}
				scheduler.Start()
				appLog.Info("preview refresh scheduled", "cron", cfg.RefreshCron)
			}

			select {
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
			case <-ctx.Done():
			}

			if scheduler != nil {
				scheduler.Stop()
			}
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)

			appLog.Info("zeitachse exiting")
			return nil
		},
	}
}

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "Render the calendar month view to a PNG once and exit.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "Output PNG path (default: the configured preview path)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadAppConfig(c)
			if err != nil {
				return err
			}
			out := c.String("out")
			if out == "" {
				out = cfg.PreviewPath()
			}
			return renderOnce(c.Context, cfg, out)
		},
	}
}

func renderOnce(ctx context.Context, cfg *config.Config, out string) error {
	s, err := web.NewServer(cfg)
	if err != nil {
		return err
	}
	return capturePNG(ctx, s, out)
}

// renderPreview captures the calendar page into the configured preview path.
func renderPreview(ctx context.Context, s *web.Server, cfg *config.Config) error {
	return capturePNG(ctx, s, cfg.PreviewPath())
}

// capturePNG serves the capture-scoped routes on an ephemeral loopback
// listener and screenshots /calendar into the given path.
func capturePNG(ctx context.Context, s *web.Server, out string) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: s.CaptureRoutes()}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	url := fmt.Sprintf("http://%s/calendar", ln.Addr().String())
	appLog.Info("capturing calendar preview", "url", url, "out", out)

	if err := capture.CalendarPNG(ctx, capture.Options{URL: url, OutputPath: out}); err != nil {
		return err
	}
	appLog.Info("preview rendered", "out", out)
	return nil
}
