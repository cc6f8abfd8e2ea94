package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"schemalift/internal/ui"
	"schemalift/pkg/errors"
)

var rootCmd = &cobra.Command{
	Use:   "schemalift",
	Short: "Lift Snowflake schemas into templated, version-controlled DDL",
	Long: `SchemaLift extracts live Snowflake schemas, finds environment-coupled
literals in the DDL, and walks an operator through templating them before
committing the result into a tracked schema tree.

The workflow runs in resumable stages: extract, review, generate, commit.
Each stage is a separate invocation and progress survives between them.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.ShowError(err)
		if appErr, ok := err.(*errors.AppError); ok && len(appErr.Suggestions) > 0 {
			fmt.Fprintln(os.Stderr)
			for _, s := range appErr.Suggestions {
				fmt.Fprintf(os.Stderr, "  hint: %s\n", s)
			}
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initViper)
}

func initViper() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home + "/.schemalift")
	}

	viper.SetEnvPrefix("SCHEMALIFT")
	viper.AutomaticEnv()

	// a missing config file is fine; commands load what they need
	_ = viper.ReadInConfig()
}
