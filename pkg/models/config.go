package models

type Config struct {
	SchemaDir    string                `yaml:"schema_dir"`
	Connections  map[string]Connection `yaml:"connections"`
	Environments []Environment         `yaml:"environments"`
	Templating   Templating            `yaml:"templating"`
	RoleMap      map[string]string     `yaml:"role_map"`
}

// Connection identifies a named Snowflake source used for extraction.
// An empty password means the secret is resolved from the OS keyring
// (or the encrypted fallback store) under the connection name.
type Connection struct {
	Account   string `yaml:"account"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password,omitempty"`
	Role      string `yaml:"role"`
	Warehouse string `yaml:"warehouse"`
	Database  string `yaml:"database,omitempty"`
	Schema    string `yaml:"schema,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`
}

// Environment represents a deployment target for the tracked schema tree
type Environment struct {
	Name      string `yaml:"name"`
	Account   string `yaml:"account"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password,omitempty"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema,omitempty"`
	Warehouse string `yaml:"warehouse"`
	Role      string `yaml:"role"`
	Timeout   string `yaml:"timeout,omitempty"`
}

// Templating is the injectable rule set the analyzer scans for. Nothing in
// the analyzer hardcodes environment names; everything comes from here.
type Templating struct {
	DBBase          string   `yaml:"db_base"`
	DBPrefix        string   `yaml:"db_prefix,omitempty"`
	EnvironmentTags []string `yaml:"environment_tags"`
	Warehouses      []string `yaml:"warehouses,omitempty"`
	RolePrefixes    []string `yaml:"role_prefixes,omitempty"`
}
