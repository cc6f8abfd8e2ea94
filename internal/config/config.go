package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"schemalift/internal/common"
	"schemalift/internal/secrets"
	"schemalift/pkg/errors"
	"schemalift/pkg/models"
)

func GetConfigPath() string {
	if configPath := os.Getenv("SCHEMALIFT_CONFIG"); configPath != "" {
		return filepath.Dir(configPath)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".schemalift")
}

func GetConfigFile() string {
	if configFile := os.Getenv("SCHEMALIFT_CONFIG"); configFile != "" {
		cleaned, err := common.CleanPath(configFile)
		if err != nil {
			return filepath.Join(GetConfigPath(), "config.yaml")
		}
		return cleaned
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

func Load() (*models.Config, error) {
	configFile := GetConfigFile()

	cleanedPath, err := common.CleanPath(configFile)
	if err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	if _, err := os.Stat(cleanedPath); os.IsNotExist(err) {
		return defaultConfig(), nil
	}

	data, err := os.ReadFile(cleanedPath) // #nosec G304 - path is validated
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config models.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.SchemaDir == "" {
		config.SchemaDir = "schemas"
	}
	return &config, nil
}

func Save(config *models.Config) error {
	configPath := GetConfigPath()
	if err := os.MkdirAll(configPath, common.DirPermissionSecure); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(GetConfigFile(), data, common.FilePermissionSecure); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func Exists() bool {
	_, err := os.Stat(GetConfigFile())
	return err == nil
}

func defaultConfig() *models.Config {
	return &models.Config{
		SchemaDir:   "schemas",
		Connections: map[string]models.Connection{},
		Templating: models.Templating{
			EnvironmentTags: []string{"SIT", "DEV", "QA", "UAT", "PROD"},
		},
	}
}

// ResolveConnection returns the named connection with its password filled
// in. Passwords left empty in yaml are looked up in the secret store under
// the connection name.
func ResolveConnection(cfg *models.Config, name string) (models.Connection, error) {
	conn, ok := cfg.Connections[name]
	if !ok {
		return models.Connection{}, errors.New(errors.ErrCodeConfigMissing,
			fmt.Sprintf("connection %q not found in configuration", name)).
			WithContext("connection", name).
			WithSuggestions("Add the connection to config.yaml under 'connections'")
	}

	if conn.Password == "" {
		store := secrets.NewStore(GetConfigPath())
		password, err := store.Get(name)
		if err != nil {
			return models.Connection{}, err
		}
		conn.Password = password
	}

	return conn, nil
}

// ResolveEnvironment returns the named deployment environment with its
// password filled in the same way as ResolveConnection.
func ResolveEnvironment(cfg *models.Config, name string) (models.Environment, error) {
	for _, env := range cfg.Environments {
		if env.Name == name {
			if env.Password == "" {
				store := secrets.NewStore(GetConfigPath())
				password, err := store.Get("env:" + name)
				if err != nil {
					return models.Environment{}, err
				}
				env.Password = password
			}
			return env, nil
		}
	}
	return models.Environment{}, errors.New(errors.ErrCodeConfigMissing,
		fmt.Sprintf("environment %q not found in configuration", name)).
		WithContext("environment", name).
		WithSuggestions("Add the environment to config.yaml under 'environments'")
}
