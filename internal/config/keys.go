package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind is the JSON type a setting is stored as.
type Kind int

const (
	String Kind = iota
	Int
	Bool
)

// Key is one setting of the config file, addressed by a dot-separated name
// such as "api.base_url".
type Key struct {
	Name   string
	Kind   Kind
	Secret bool
	Help   string
}

// keys follows the field order of Config.
var keys = []Key{
	{Name: "data_dir", Help: "directory for preferences, tasks and the PID file"},
	{Name: "log_level", Help: "debug, info, warn or error"},
	{Name: "api.base_url", Help: "research backend URL"},
	{Name: "api.timeout_seconds", Kind: Int, Help: "per-request timeout in seconds"},
	{Name: "api.token", Secret: true, Help: "bearer token sent to the backend"},
	{Name: "api.token_file", Help: "file holding the bearer token, re-read when it changes"},
	{Name: "telegram.token", Secret: true, Help: "Telegram bot token"},
	{Name: "http.enabled", Kind: Bool, Help: "run the webhook server under serve"},
	{Name: "http.listen", Help: "webhook server listen address"},
	{Name: "render.tokenizer_model", Help: "model whose tokenizer sizes a thread"},
}

// Keys returns every known setting.
func Keys() []Key {
	return slices.Clone(keys)
}

// LookupKey returns the setting called name.
func LookupKey(name string) (Key, bool) {
	i := slices.IndexFunc(keys, func(k Key) bool { return k.Name == name })
	if i < 0 {
		return Key{}, false
	}
	return keys[i], true
}

// IsSecretKey reports whether name holds a credential.
func IsSecretKey(name string) bool {
	k, ok := LookupKey(name)
	return ok && k.Secret
}

// Parse converts a command-line value to the setting's JSON type.
func (k Key) Parse(value string) (any, error) {
	switch k.Kind {
	case Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s: expected an integer, got %q", k.Name, value)
		}
		return n, nil
	case Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s: expected true or false, got %q", k.Name, value)
		}
		return b, nil
	}
	return value, nil
}

// Mask shows a secret as "***" plus its last four characters. Other values
// and empty secrets are returned as they are.
func (k Key) Mask(v any) any {
	s, ok := v.(string)
	if !k.Secret || !ok || s == "" {
		return v
	}
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return "***" + s
}

// lookup walks a decoded config document along a dot-separated name.
func lookup(doc map[string]any, name string) (any, bool) {
	parts := strings.Split(name, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	v, ok := cur[parts[len(parts)-1]]
	return v, ok
}

// assign stores v under a dot-separated name, creating objects on the way.
// Other entries of the document are left alone.
func assign(doc map[string]any, name string, v any) {
	parts := strings.Split(name, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}
