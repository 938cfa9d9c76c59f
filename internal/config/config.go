package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	API      struct {
		BaseURL        string `json:"base_url"`
		TimeoutSeconds int    `json:"timeout_seconds"`
		Token          string `json:"token"`
		TokenFile      string `json:"token_file"`
	} `json:"api"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Render struct {
		TokenizerModel string `json:"tokenizer_model"`
	} `json:"render"`
}

// Timeout returns the backend request timeout.
func (c *Config) Timeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func (c *Config) PrefsPath() string { return filepath.Join(c.DataDir, "prefs.json") }
func (c *Config) TasksPath() string { return filepath.Join(c.DataDir, "tasks.json") }
func (c *Config) PIDPath() string   { return filepath.Join(c.DataDir, "aletheia.pid") }

// DefaultPath returns ~/.aletheia/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".aletheia", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".aletheia"),
		LogLevel: "info",
	}
	cfg.API.BaseURL = "http://localhost:8000"
	cfg.API.TimeoutSeconds = 120
	cfg.HTTP.Listen = "127.0.0.1:8484"
	cfg.Render.TokenizerModel = "gpt-4"
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if baseURL := os.Getenv("ALETHEIA_API_URL"); baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	if token := os.Getenv("ALETHEIA_TOKEN"); token != "" {
		cfg.API.Token = token
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}

	return cfg, nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into its generic JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns every known setting keyed by its dot-separated name,
// optionally with secrets masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok := lookup(m, k.Name)
		if !ok {
			continue
		}
		if mask {
			v = k.Mask(v)
		}
		out[k.Name] = v
	}
	return out, nil
}

// readRaw reads the file as a generic map so keys unknown to Config survive.
func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return m, nil
}

// GetValue returns the value stored under a dot-separated key. A missing
// file is created with defaults first.
func GetValue(path, name string) (any, error) {
	k, ok := LookupKey(name)
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", name)
	}
	if _, err := Load(path); err != nil {
		return nil, err
	}
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := lookup(raw, k.Name)
	if !ok {
		return nil, fmt.Errorf("config key %s is not set in %s", k.Name, path)
	}
	return v, nil
}

// SetValue stores value under a dot-separated key, converted to the key's
// type. Unknown keys and values of the wrong type are rejected.
func SetValue(path, name, value string) error {
	k, ok := LookupKey(name)
	if !ok {
		return fmt.Errorf("unknown config key: %s", name)
	}
	parsed, err := k.Parse(value)
	if err != nil {
		return err
	}
	raw, err := readRaw(path)
	if err != nil {
		return err
	}
	assign(raw, k.Name, parsed)

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}
