// Package config provides persistence for saved model provider
// configurations. The configuration is stored in
// ~/.config/kubewise/config.yaml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"

	"github.com/kubewise/kubewise/pkg/paths"
)

// CurrentVersion is the current version of the config format
const CurrentVersion = "v1"

// StoredProvider is one saved model provider configuration.
type StoredProvider struct {
	// ProviderID identifies the provider implementation, e.g. "openai",
	// "azure", "anthropic" or "local".
	ProviderID  string         `yaml:"provider_id" json:"providerId"`
	DisplayName string         `yaml:"display_name,omitempty" json:"displayName,omitempty"`
	Config      map[string]any `yaml:"config" json:"config"`
	IsDefault   bool           `yaml:"is_default,omitempty" json:"isDefault,omitempty"`
}

// StringConfig returns the provider config values coerced to strings, for
// feeding into a secrets provider chain.
func (p *StoredProvider) StringConfig() map[string]string {
	out := make(map[string]string, len(p.Config))
	for k, v := range p.Config {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// Config holds all saved provider configurations.
type Config struct {
	// mu protects concurrent access to the provider list. Config methods
	// may be called from parallel tests or goroutines.
	mu sync.Mutex

	// Version is the config format version
	Version string `yaml:"version,omitempty"`
	// Providers lists the saved provider configurations
	Providers []*StoredProvider `yaml:"providers,omitempty"`
	// ActiveProviderID selects which saved configuration is in use
	ActiveProviderID string `yaml:"active_provider_id,omitempty"`
}

// Path returns the path to the config file
func Path() string {
	return filepath.Join(paths.GetConfigDir(), "config.yaml")
}

// Load loads the configuration from the config file. Legacy single
// provider formats are migrated to the provider list on first load.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

func LoadFrom(configPath string) (*Config, error) {
	config := &Config{}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Try migrating legacy formats if no providers exist yet
	if len(config.Providers) == 0 && config.migrateFromLegacy(data) {
		if err := config.saveTo(configPath); err != nil {
			return nil, fmt.Errorf("failed to save migrated config: %w", err)
		}
	}

	return config, nil
}

// migrateFromLegacy recognizes the two historical single provider layouts:
// flat API_KEY/GPT_MODEL keys (optionally Azure with DEPLOYMENT_NAME and
// ENDPOINT), and the intermediate {provider, config} pair. Returns true if
// anything was migrated.
func (c *Config) migrateFromLegacy(data []byte) bool {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil || raw == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if apiKey, ok := raw["API_KEY"].(string); ok && apiKey != "" {
		apiType, _ := raw["API_TYPE"].(string)
		deployment, _ := raw["DEPLOYMENT_NAME"].(string)
		endpoint, _ := raw["ENDPOINT"].(string)
		model, _ := raw["GPT_MODEL"].(string)

		switch {
		case apiType == "azure" && deployment != "" && endpoint != "":
			if model == "" {
				model = "gpt-4"
			}
			c.Providers = append(c.Providers, &StoredProvider{
				ProviderID:  "azure",
				DisplayName: "Azure OpenAI (Legacy)",
				Config: map[string]any{
					"apiKey":         apiKey,
					"deploymentName": deployment,
					"endpoint":       endpoint,
					"model":          model,
				},
				IsDefault: true,
			})
		case model != "":
			c.Providers = append(c.Providers, &StoredProvider{
				ProviderID:  "openai",
				DisplayName: "OpenAI (Legacy)",
				Config: map[string]any{
					"apiKey": apiKey,
					"model":  model,
				},
				IsDefault: true,
			})
		}
	}

	if providerID, ok := raw["provider"].(string); ok && providerID != "" {
		if cfg, ok := raw["config"].(map[string]any); ok {
			alreadyAdded := false
			for _, p := range c.Providers {
				if p.ProviderID == providerID {
					alreadyAdded = true
					break
				}
			}
			if !alreadyAdded {
				c.Providers = append(c.Providers, &StoredProvider{
					ProviderID:  providerID,
					DisplayName: providerID + " Config",
					Config:      cfg,
					IsDefault:   len(c.Providers) == 0,
				})
			}
		}
	}

	if len(c.Providers) == 0 {
		return false
	}

	c.ActiveProviderID = c.Providers[0].ProviderID
	for _, p := range c.Providers {
		if p.IsDefault {
			c.ActiveProviderID = p.ProviderID
			break
		}
	}
	return true
}

// Save saves the configuration to the config file
func (c *Config) Save() error {
	return c.saveTo(Path())
}

func (c *Config) saveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Ensure version is always set to current version when saving
	c.Version = CurrentVersion

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}

// ActiveProvider returns the active provider configuration: the one named
// by ActiveProviderID, else the default, else the first saved one. Returns
// nil when no providers are saved.
func (c *Config) ActiveProvider() *StoredProvider {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.Providers) == 0 {
		return nil
	}

	if c.ActiveProviderID != "" {
		for _, p := range c.Providers {
			if p.ProviderID == c.ActiveProviderID {
				return p
			}
		}
	}
	for _, p := range c.Providers {
		if p.IsDefault {
			return p
		}
	}
	return c.Providers[0]
}

// SetProvider creates or updates a provider configuration and makes it the
// active one.
func (c *Config) SetProvider(providerID string, cfg map[string]any, makeDefault bool, displayName string) error {
	if providerID == "" {
		return errors.New("provider id cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existingIndex := -1
	for i, p := range c.Providers {
		if makeDefault {
			p.IsDefault = false
		}
		if p.ProviderID == providerID {
			existingIndex = i
		}
	}

	updated := &StoredProvider{
		ProviderID:  providerID,
		DisplayName: displayName,
		Config:      cfg,
		IsDefault:   makeDefault || (existingIndex == -1 && len(c.Providers) == 0),
	}
	if updated.DisplayName == "" && existingIndex >= 0 {
		updated.DisplayName = c.Providers[existingIndex].DisplayName
	}

	if existingIndex >= 0 {
		c.Providers[existingIndex] = updated
	} else {
		c.Providers = append(c.Providers, updated)
	}

	c.ActiveProviderID = providerID
	return nil
}

// SetActive marks an already saved provider configuration as the active
// one.
func (c *Config) SetActive(providerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.Providers {
		if p.ProviderID == providerID {
			c.ActiveProviderID = providerID
			return nil
		}
	}
	return fmt.Errorf("provider %q not found", providerID)
}

// DeleteProvider removes a provider configuration. When cfg is non-nil,
// only the entry whose apiKey or baseUrl (or whole config) matches is
// removed, so multiple accounts for the same provider can coexist. Returns
// true if anything was removed.
func (c *Config) DeleteProvider(providerID string, cfg map[string]any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.Providers[:0]
	removed := false
	for _, p := range c.Providers {
		if p.ProviderID == providerID && configMatches(p.Config, cfg) {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	c.Providers = kept

	if !removed {
		return false
	}

	if c.ActiveProviderID == providerID {
		c.ActiveProviderID = ""
		for _, p := range c.Providers {
			if p.IsDefault {
				c.ActiveProviderID = p.ProviderID
				break
			}
		}
		if c.ActiveProviderID == "" && len(c.Providers) > 0 {
			c.ActiveProviderID = c.Providers[0].ProviderID
		}
	}

	hasDefault := false
	for _, p := range c.Providers {
		if p.IsDefault {
			hasDefault = true
			break
		}
	}
	if !hasDefault && len(c.Providers) > 0 {
		c.Providers[0].IsDefault = true
	}

	return true
}

// List returns a snapshot of the saved provider configurations.
func (c *Config) List() []*StoredProvider {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*StoredProvider, len(c.Providers))
	copy(out, c.Providers)
	return out
}

func configMatches(stored, candidate map[string]any) bool {
	if candidate == nil {
		return true
	}
	if a, ok := stored["apiKey"].(string); ok {
		if b, ok := candidate["apiKey"].(string); ok {
			return a == b
		}
	}
	if a, ok := stored["baseUrl"].(string); ok {
		if b, ok := candidate["baseUrl"].(string); ok {
			return a == b
		}
	}
	return reflect.DeepEqual(stored, candidate)
}
