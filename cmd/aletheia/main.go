package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/aletheia/internal/auth"
	"github.com/user/aletheia/internal/chat"
	"github.com/user/aletheia/internal/config"
	"github.com/user/aletheia/internal/state"
	"github.com/user/aletheia/pkg/research"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "aletheia",
	Short:         "Client for the Aletheia research agent",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, exiting on failure.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newBackend(cfg *config.Config) *research.Client {
	return research.New(&research.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.Timeout(),
	})
}

func tokenPath(cfg *config.Config) string {
	if cfg.API.TokenFile != "" {
		return cfg.API.TokenFile
	}
	return auth.DefaultTokenPath()
}

// newSupplier seeds the credential from config or env, falling back to the
// token file.
func newSupplier(cfg *config.Config) *auth.Supplier {
	token := cfg.API.Token
	if token == "" {
		token = auth.ReadTokenFile(tokenPath(cfg))
	}
	return auth.NewSupplier(token, slog.Default())
}

// watchesTokenFile reports whether the credential follows the token file.
func watchesTokenFile(cfg *config.Config) bool {
	return cfg.API.Token == ""
}

// loadPrefs returns the persisted UI preferences, or defaults.
func loadPrefs(cfg *config.Config) (*state.PrefsStore, state.Preferences) {
	prefsStore := state.NewPrefsStore(cfg.PrefsPath())
	prefs, err := prefsStore.Load()
	if err != nil {
		slog.Warn("failed to load preferences, using defaults", "path", cfg.PrefsPath(), "error", err)
	}
	return prefsStore, prefs
}

// newController wires a Store and Controller for one-shot commands.
func newController(cfg *config.Config, prefs state.Preferences) (*chat.Controller, *auth.Supplier) {
	creds := newSupplier(cfg)
	ctrl := chat.New(state.NewStore(prefs), newBackend(cfg), creds)
	return ctrl, creds
}
