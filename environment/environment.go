// Package environment manages the named environments a run can target.
// Settings for an environment inherit any unset key from the "default"
// environment, which always exists.
package environment

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// DefaultID is the id of the environment every other environment inherits from.
const DefaultID = "default"

// Settings holds the per-environment suite configuration.
type Settings struct {
	Browser      string            `yaml:"browser"`
	BaseURL      string            `yaml:"base_url"`
	Capabilities map[string]string `yaml:"capabilities"`
	ServerArgs   map[string]string `yaml:"server_args"`
	Env          map[string]string `yaml:"env"`
}

// Registry loads and resolves environment settings.
type Registry struct {
	config Config
	envs   map[string]Settings
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log              log.Logger
	EnvironmentsFile string // optional; with no file only "default" exists
}

type environmentsFile struct {
	Environments map[string]Settings `yaml:"environments"`
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config: cfg,
		envs:   map[string]Settings{DefaultID: {}},
	}

	if cfg.EnvironmentsFile != "" {
		if err := r.loadEnvironments(cfg.EnvironmentsFile); err != nil {
			return nil, fmt.Errorf("failed to load environments: %w", err)
		}
	}

	cfg.Log.Debug("Environment registry loaded", "len(environments)", len(r.envs))
	return r, nil
}

func (r *Registry) loadEnvironments(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read environments file: %w", err)
	}

	var file environmentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse environments file: %w", err)
	}
	if len(file.Environments) == 0 {
		return fmt.Errorf("environments file %s defines no environments", path)
	}

	for id, settings := range file.Environments {
		if id == "" {
			return fmt.Errorf("environments file %s contains an environment with an empty id", path)
		}
		r.envs[id] = settings
	}
	if _, ok := r.envs[DefaultID]; !ok {
		r.envs[DefaultID] = Settings{}
	}
	return nil
}

// Has reports whether an environment id is known.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.envs[id]
	return ok
}

// IDs returns all known environment ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.envs))
	for id := range r.envs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve returns the settings for an environment with every unset key
// inherited from the default environment.
func (r *Registry) Resolve(id string) (Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	settings, ok := r.envs[id]
	if !ok {
		return Settings{}, fmt.Errorf("unknown environment %q", id)
	}
	base := r.envs[DefaultID]
	if id == DefaultID {
		return settings, nil
	}

	if settings.Browser == "" {
		settings.Browser = base.Browser
	}
	if settings.BaseURL == "" {
		settings.BaseURL = base.BaseURL
	}
	settings.Capabilities = mergeMaps(base.Capabilities, settings.Capabilities)
	settings.ServerArgs = mergeMaps(base.ServerArgs, settings.ServerArgs)
	settings.Env = mergeMaps(base.Env, settings.Env)
	return settings, nil
}

// mergeMaps overlays override onto base key-by-key, leaving both inputs intact.
func mergeMaps(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
