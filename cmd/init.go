package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"schemalift/internal/config"
	"schemalift/internal/secrets"
	"schemalift/internal/snowflake"
	"schemalift/internal/ui"
	"schemalift/pkg/models"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration interactively",
	Long: `Walk through creating ~/.schemalift/config.yaml: a named source
connection, the templating rule set, and optional credential storage in the
OS keyring. Passwords never land in the yaml file.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration")
}

func runInit(cmd *cobra.Command, args []string) error {
	if config.Exists() && !initForce {
		ui.ShowWarning(fmt.Sprintf("Configuration already exists at %s", config.GetConfigFile()))
		ui.ShowInfo("Rerun with --force to overwrite it")
		return nil
	}

	if !ui.IsInteractive() {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		ui.ShowSuccess(fmt.Sprintf("Wrote a default configuration to %s", config.GetConfigFile()))
		return nil
	}

	ui.ShowHeader("SchemaLift setup")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ui.PrintSection("Source connection")
	connName, err := ui.Input("Connection name", "default", "How --src will refer to this connection")
	if err != nil {
		return err
	}
	account, err := ui.Input("Snowflake account", "", "e.g. xy12345.eu-west-1")
	if err != nil {
		return err
	}
	username, err := ui.Input("Username", "", "")
	if err != nil {
		return err
	}
	password, err := ui.Password("Password")
	if err != nil {
		return err
	}
	role, err := ui.Input("Role", "SYSADMIN", "")
	if err != nil {
		return err
	}
	warehouse, err := ui.Input("Warehouse", "", "")
	if err != nil {
		return err
	}
	database, err := ui.Input("Default database", "", "Database extractions read from when --database is omitted")
	if err != nil {
		return err
	}

	conn := models.Connection{
		Account:   account,
		Username:  username,
		Role:      role,
		Warehouse: warehouse,
		Database:  database,
	}

	store := secrets.NewStore(config.GetConfigPath())
	if err := store.Set(connName, password); err != nil {
		ui.ShowWarning(fmt.Sprintf("Could not store the password securely: %v", err))
		keep, confirmErr := ui.Confirm("Keep the password in config.yaml instead?", false)
		if confirmErr != nil {
			return confirmErr
		}
		if keep {
			conn.Password = password
		}
	}
	cfg.Connections[connName] = conn

	ui.PrintSection("Templating rules")
	dbBase, err := ui.Input("Database base name", "", "The environment-neutral part, e.g. PLATFORM for PLATFORM_SIT")
	if err != nil {
		return err
	}
	tags, err := ui.Input("Environment tags", strings.Join(cfg.Templating.EnvironmentTags, ","),
		"Comma-separated suffixes that mark an environment-coupled name")
	if err != nil {
		return err
	}
	cfg.Templating.DBBase = strings.ToUpper(strings.TrimSpace(dbBase))
	cfg.Templating.EnvironmentTags = splitTags(tags)

	if err := config.Save(cfg); err != nil {
		return err
	}
	ui.ShowSuccess(fmt.Sprintf("Configuration written to %s", config.GetConfigFile()))

	test, err := ui.Confirm("Test the connection now?", true)
	if err != nil {
		return err
	}
	if test {
		conn.Password = password
		service := snowflake.NewService(connectionConfig(conn, database, ""))
		if err := service.Connect(); err != nil {
			ui.ShowError(err)
			return nil
		}
		defer service.Close()
		ui.ShowSuccess("Connection verified")
	}
	return nil
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
