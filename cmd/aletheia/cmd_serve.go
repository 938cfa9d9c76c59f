package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/aletheia/internal/chat"
	"github.com/user/aletheia/internal/config"
	"github.com/user/aletheia/internal/delivery"
	"github.com/user/aletheia/internal/scheduler"
	"github.com/user/aletheia/internal/state"
	"github.com/user/aletheia/internal/telegram"
	"github.com/user/aletheia/internal/webhook"
)

// maxConcurrentTasks bounds scheduled and webhook prompts in flight at once.
const maxConcurrentTasks = 2

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot, scheduler and webhook server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(cfg *config.Config) (string, error) {
	pidPath := cfg.PIDPath()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

// newDeliveryRegistry registers the log: and file: targets, plus telegram:
// when tg is set.
func newDeliveryRegistry(tg *telegram.Adapter) *delivery.Registry {
	reg := delivery.NewRegistry()
	reg.Register("log:", delivery.LogHandler(slog.Default().With("component", "delivery")))
	reg.Register("file:", delivery.FileHandler())
	if tg != nil {
		reg.Register(telegram.TargetPrefix, tg.SendTo)
	}
	return reg
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	backend := newBackend(cfg)
	creds := newSupplier(cfg)
	if watchesTokenFile(cfg) {
		g.Go(func() error {
			creds.WatchFile(gctx, tokenPath(cfg), tokenPollInterval)
			return nil
		})
	}

	_, prefs := loadPrefs(cfg)
	pool := chat.NewPool(gctx, backend, creds, prefs)
	defer pool.Close()

	var tg *telegram.Adapter
	if cfg.Telegram.Token != "" {
		tg, err = telegram.New(cfg.Telegram.Token, pool)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		g.Go(func() error {
			tg.Start(gctx)
			return nil
		})
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	taskStore := state.NewTaskStore(cfg.TasksPath())
	runner := scheduler.NewRunner(backend, creds, newDeliveryRegistry(tg), maxConcurrentTasks, slog.Default())

	sched := scheduler.New(taskStore, runner.Handler(gctx))
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()
	slog.Info("scheduler started", "tasks", sched.Entries())

	if cfg.HTTP.Enabled {
		httpServer := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           webhook.NewServer(taskStore, runner.Run, pool),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("webhook server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("webhook server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return httpServer.Close()
		})
	}

	slog.Info("aletheia started",
		"backend", backend.Location(),
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"http_enabled", cfg.HTTP.Enabled,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-gctx.Done():
			// A component failed.
			cancel()
			return g.Wait()
		case sig := <-sigChan:
			if sig == syscall.SIGUSR1 {
				if err := sched.Reload(); err != nil {
					slog.Error("failed to reload tasks", "error", err)
				} else {
					slog.Info("tasks reloaded", "tasks", sched.Entries())
				}
				continue
			}
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					slog.Error("failed to get executable path", "error", err)
					continue
				}
				os.Remove(pidPath)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					slog.Error("failed to re-exec", "error", err)
					if _, writeErr := writePIDFile(cfg); writeErr != nil {
						slog.Error("failed to re-write PID file", "error", writeErr)
					}
				}
				continue
			}
			slog.Info("shutting down", "signal", sig)
			cancel()
			return g.Wait()
		}
	}
}
