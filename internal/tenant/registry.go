package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
)

// AppConfig describes one municipality deployment sharing this backend.
type AppConfig struct {
	AppID        string `json:"app_id"`
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email,omitempty"`
}

// Registry is the set of municipalities this deployment serves. Requests
// naming any other app id are refused before they reach a handler.
type Registry struct {
	mu   sync.RWMutex
	apps map[string]AppConfig
}

func NewRegistry() *Registry {
	return &Registry{apps: make(map[string]AppConfig)}
}

// LoadFromFile reads {"apps": [...]} from path. App ids must be non-empty,
// free of whitespace and unique.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read apps config: %w", err)
	}

	var file struct {
		Apps []AppConfig `json:"apps"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse apps config %s: %w", path, err)
	}

	registry := NewRegistry()
	for i, app := range file.Apps {
		if app.AppID == "" || strings.ContainsAny(app.AppID, " \t\r\n") {
			return nil, fmt.Errorf("apps config entry %d: invalid app_id %q", i, app.AppID)
		}
		if _, dup := registry.Lookup(app.AppID); dup {
			return nil, fmt.Errorf("apps config entry %d: duplicate app_id %q", i, app.AppID)
		}
		registry.Register(&app)
	}
	return registry, nil
}

// Register adds or replaces a tenant. The registry keeps its own copy.
func (r *Registry) Register(cfg *AppConfig) {
	r.mu.Lock()
	r.apps[cfg.AppID] = *cfg
	r.mu.Unlock()
}

func (r *Registry) Lookup(appID string) (AppConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.apps[appID]
	return app, ok
}

func (r *Registry) Exists(appID string) bool {
	_, ok := r.Lookup(appID)
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.apps)
}

// All returns the registered tenants ordered by app id.
func (r *Registry) All() []AppConfig {
	r.mu.RLock()
	result := make([]AppConfig, 0, len(r.apps))
	for _, app := range r.apps {
		result = append(result, app)
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b AppConfig) int { return strings.Compare(a.AppID, b.AppID) })
	return result
}
