package defaults

import (
	"context"
	"strings"

	"github.com/tabwave/stepgate/internal/gateway/plugin"
)

// HostSettings serves per-host overrides declared in its own plugin
// configuration as "host.<hostname>.<key>". The override map for a
// host is computed once at construction and shared read-only.
type HostSettings struct {
	byHost map[string]map[string]string
}

func NewHostSettings(settings plugin.Settings) *HostSettings {
	byHost := make(map[string]map[string]string)
	for k, v := range settings {
		rest, ok := strings.CutPrefix(k, "host.")
		if !ok {
			continue
		}
		host, key, ok := strings.Cut(rest, ".")
		if !ok || host == "" || key == "" {
			continue
		}
		if byHost[host] == nil {
			byHost[host] = make(map[string]string)
		}
		byHost[host][key] = v
	}
	return &HostSettings{byHost: byHost}
}

func (s *HostSettings) Name() string              { return "HostSettings" }
func (s *HostSettings) Category() plugin.Category { return plugin.CategorySettings }

func (s *HostSettings) GetRequestSettings(_ context.Context, host string) (map[string]string, error) {
	return s.byHost[host], nil
}
