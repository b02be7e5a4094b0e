package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rubiojr/zipindex/pkg/api"
	"github.com/rubiojr/zipindex/pkg/catalog"
	"github.com/rubiojr/zipindex/pkg/config"
	"github.com/rubiojr/zipindex/pkg/log"
	"github.com/rubiojr/zipindex/pkg/realtime"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address to listen on (defaults to server.listen from the config)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"), c.String("listen"))
		},
	}
}

// serve runs the API until SIGINT or SIGTERM, reloading request defaults
// when the config file changes or on SIGHUP.
func serve(ctx context.Context, configPath, listen string) error {
	logger := log.ForService("serve")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if listen == "" {
		listen = cfg.Server.Listen
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	hub := realtime.NewHub(0)
	builder := newBuilder(cfg, store, catalog.WithProgress(hub.Broadcast))
	server := api.NewServer(store, builder, newSearchService(cfg, store), newExtractor(cfg), hub, serverOptions(cfg))

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:              listen,
		Handler:           api.CorsMiddleware(mux, cfg.Server.AllowedOrigins...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("listening on http://%s", listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Println("\nShutting down...")
		// Hijacked websocket connections are not tracked by Shutdown.
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		watchConfig(gctx, configPath, func() {
			reloadServerOptions(configPath, server, logger)
		})
		return nil
	})

	return g.Wait()
}

func serverOptions(cfg *config.Config) api.Options {
	return api.Options{
		ArchiveDir:     cfg.ArchiveDir,
		Destination:    cfg.Extract.Destination,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
}

func reloadServerOptions(configPath string, server *api.Server, logger *log.Logger) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Errorf("failed to reload configuration: %v", err)
		return
	}
	server.SetOptions(serverOptions(cfg))
	logger.Infof("configuration reloaded (archive_dir=%q, destination=%q)", cfg.ArchiveDir, cfg.Extract.Destination)
}

// watchConfig calls reload on SIGHUP and whenever configPath is written or
// replaced, until ctx is done.
func watchConfig(ctx context.Context, configPath string, reload func()) {
	logger := log.ForService("serve")

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create config file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("failed to close config file watcher: %v", err)
			}
		}()
		if err := watcher.Add(configPath); err != nil {
			logger.Warnf("failed to watch config file %s: %v", configPath, err)
		} else {
			logger.Infof("watching config file for changes: %s", configPath)
		}
		events, errs = watcher.Events, watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hupCh:
			logger.Infof("received SIGHUP, reloading configuration")
			reload()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			logger.Debugf("config file changed: %s (%s)", event.Name, event.Op)

			// Editors that save atomically replace the file, which drops the watch.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					logger.Warnf("config file was removed and not replaced, skipping reload")
					continue
				}
				if err := watcher.Add(configPath); err != nil {
					logger.Warnf("failed to re-add config file to watcher: %v", err)
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			reload()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warnf("config file watcher error: %v", err)
		}
	}
}
