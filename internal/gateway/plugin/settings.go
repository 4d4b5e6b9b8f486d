package plugin

import (
	"maps"
	"strconv"
	"strings"
	"time"
)

// Settings is a flat, dot-namespaced key/value configuration view.
// Instances are immutable snapshots; overlays build new maps instead
// of patching in place.
type Settings map[string]string

// ForPlugin returns the subset of keys under "plugin.<name>." with
// the prefix stripped, so a plugin sees only its own namespace.
func (s Settings) ForPlugin(name string) Settings {
	prefix := "plugin." + name + "."
	scoped := Settings{}
	for k, v := range s {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			scoped[rest] = v
		}
	}
	return scoped
}

// Overlay returns a new snapshot where keys in override shadow the
// receiver. The receiver is left untouched.
func (s Settings) Overlay(override map[string]string) Settings {
	merged := make(Settings, len(s)+len(override))
	maps.Copy(merged, s)
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

func (s Settings) GetString(key, fallback string) string {
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return fallback
}

func (s Settings) GetInt(key string, fallback int) int {
	if v, ok := s[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (s Settings) GetBool(key string, fallback bool) bool {
	if v, ok := s[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// GetDuration accepts either a Go duration string or a bare number of
// seconds, the latter for compatibility with older configurations.
func (s Settings) GetDuration(key string, fallback time.Duration) time.Duration {
	v, ok := s[key]
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// GetList splits a comma-separated value into trimmed entries.
func (s Settings) GetList(key string) []string {
	v, ok := s[key]
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
