package config

import "sort"

// Default values.
const (
	DefaultServer = "127.0.0.1:5080"
	DefaultOutput = "table"
)

// CLIConfig is the configuration for camhub-cli.
type CLIConfig struct {
	DefaultServer string `yaml:"default_server"`
	DefaultOutput string `yaml:"default_output"`

	// Hubs are saved profiles by name.
	Hubs map[string]HubProfile `yaml:"hubs"`

	// CurrentHub selects the profile used when --hub is not given.
	CurrentHub string `yaml:"current_hub,omitempty"`
}

// HubProfile stores how to reach one hub.
type HubProfile struct {
	Server string `yaml:"server" json:"server"`
	Config string `yaml:"config,omitempty" json:"config,omitempty"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		DefaultServer: DefaultServer,
		DefaultOutput: DefaultOutput,
		Hubs:          make(map[string]HubProfile),
	}
}

// Profile returns the named profile, or the current one when name is
// empty. The second result is false when no profile applies.
func (c *CLIConfig) Profile(name string) (HubProfile, bool) {
	if name == "" {
		name = c.CurrentHub
	}
	if name == "" {
		return HubProfile{}, false
	}
	p, ok := c.Hubs[name]
	return p, ok
}

// Names returns the profile names in sorted order.
func (c *CLIConfig) Names() []string {
	names := make([]string, 0, len(c.Hubs))
	for name := range c.Hubs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
