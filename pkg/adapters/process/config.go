package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/chequeflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// CommandConfig binds a catalog operation to a local command.
type CommandConfig struct {
	Operation   domain.Operation  `yaml:"operation" json:"operation"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of commands.yaml.
type ConfigFile struct {
	Commands []CommandConfig `yaml:"commands" json:"commands"`
}

// LoadCommands reads a configuration file (YAML or JSON) and returns the
// commands keyed by operation. Unknown operations are rejected.
func LoadCommands(path string) (map[domain.Operation]CommandConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read commands config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	commands := make(map[domain.Operation]CommandConfig, len(cfg.Commands))
	for _, c := range cfg.Commands {
		op, err := domain.ParseOperation(string(c.Operation))
		if err != nil {
			return nil, err
		}
		if c.Command == "" {
			return nil, fmt.Errorf("operation %s: command is empty", op)
		}
		if _, dup := commands[op]; dup {
			return nil, fmt.Errorf("operation %s: configured twice", op)
		}
		commands[op] = c
	}
	return commands, nil
}
