package runtime

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the VM's tunable ambient configuration (SPEC_FULL.md AMBIENT
// STACK: "Configuration"). CLI flags in cmd/vortex override values loaded
// from a YAML file.
type Config struct {
	ModulesRoot  string `yaml:"modules_root"`
	InitStackCap int    `yaml:"init_stack_capacity"`
	MaxCallDepth int    `yaml:"max_call_depth"`
	Color        bool   `yaml:"color"`
}

func DefaultConfig() *Config {
	return &Config{
		ModulesRoot:  "",
		InitStackCap: 1024,
		MaxCallDepth: 1024,
		Color:        true,
	}
}

// LoadConfig reads a YAML configuration file, falling back to defaults for
// any field it omits (and for a string or number field it sets to zero).
// A missing file is not an error: callers
// that pass a path expecting it to exist should stat it first.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	loaded := &Config{Color: cfg.Color}
	if err := yaml.Unmarshal(data, loaded); err != nil {
		return nil, err
	}
	if loaded.ModulesRoot != "" {
		cfg.ModulesRoot = loaded.ModulesRoot
	}
	if loaded.InitStackCap != 0 {
		cfg.InitStackCap = loaded.InitStackCap
	}
	if loaded.MaxCallDepth != 0 {
		cfg.MaxCallDepth = loaded.MaxCallDepth
	}
	cfg.Color = loaded.Color
	return cfg, nil
}
