package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"schemalift/internal/common"
	"schemalift/internal/config"
	"schemalift/internal/snowflake"
	"schemalift/internal/template"
	"schemalift/internal/ui"
	"schemalift/pkg/errors"
	"schemalift/pkg/models"
)

var (
	deploySchema string
	deployDryRun bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy [environment]",
	Short: "Deploy a tracked schema to an environment",
	Long: `Render a committed schema's templated DDL for the named environment and
execute it there. Files run in name order, which preserves the dependency
order they were extracted in. With --dry-run the rendered SQL is printed
instead of executed.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnvDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().StringVarP(&deploySchema, "schema", "s", "", "Tracked schema to deploy")
	deployCmd.Flags().BoolVarP(&deployDryRun, "dry-run", "d", false, "Render and print the SQL without executing it")
	_ = deployCmd.MarkFlagRequired("schema")
}

func runEnvDeploy(cmd *cobra.Command, args []string) error {
	envName := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	env, err := config.ResolveEnvironment(cfg, envName)
	if err != nil {
		return err
	}

	files, err := trackedFiles(cfg.SchemaDir, deploySchema)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New(errors.ErrCodeFileNotFound,
			fmt.Sprintf("no committed files for schema %s", deploySchema)).
			WithSuggestions("Run the workflow through the commit stage first")
	}

	vals := template.Values{
		DBBase:   cfg.Templating.DBBase,
		DBPrefix: cfg.Templating.DBPrefix,
		Env:      strings.ToUpper(env.Name),
	}

	rendered := make(map[string]string, len(files))
	for _, path := range files {
		sql, err := template.RenderFile(path, vals)
		if err != nil {
			return err
		}
		rendered[path] = sql
	}

	if deployDryRun {
		ui.ShowHeader(fmt.Sprintf("Dry run: %s -> %s", deploySchema, envName))
		for _, path := range files {
			ui.PrintSection(filepath.Base(path))
			fmt.Println(rendered[path])
		}
		return nil
	}

	service := snowflake.NewService(environmentConfig(env, deploySchema))
	ui.ShowInfo(fmt.Sprintf("Connecting to %s as %s", env.Account, env.Username))
	if err := service.Connect(); err != nil {
		return err
	}
	defer service.Close()

	ui.ShowHeader(fmt.Sprintf("Deploying %s to %s (%s)", deploySchema, envName, env.Database))

	type result struct {
		file     string
		duration time.Duration
		err      error
	}
	var results []result
	failed := false

	for _, path := range files {
		start := time.Now()
		execErr := service.ExecuteSQL(rendered[path], env.Database, deploySchema)
		results = append(results, result{filepath.Base(path), time.Since(start), execErr})
		if execErr != nil {
			failed = true
			ui.ShowError(execErr)
			break
		}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"File", "Status", "Duration"})
	table.SetBorder(false)
	for _, r := range results {
		status := color.GreenString("ok")
		if r.err != nil {
			status = color.RedString("failed")
		}
		table.Append([]string{r.file, status, r.duration.Round(time.Millisecond).String()})
	}
	table.Render()

	if failed {
		return errors.New(errors.ErrCodeSQLExecution,
			fmt.Sprintf("deployment to %s stopped at the first failing file", envName))
	}
	ui.ShowSuccess(fmt.Sprintf("Deployed %d files to %s", len(results), envName))
	return nil
}

// trackedFiles lists a schema's committed DDL files in execution order
func trackedFiles(schemaRoot, schema string) ([]string, error) {
	dir := filepath.Join(schemaRoot, common.SanitizeFileName(schema))
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to list tracked files")
	}
	sort.Strings(files)
	return files, nil
}

func environmentConfig(env models.Environment, schema string) snowflake.Config {
	timeout := 30 * time.Second
	if env.Timeout != "" {
		if d, err := time.ParseDuration(env.Timeout); err == nil {
			timeout = d
		}
	}
	return snowflake.Config{
		Account:   env.Account,
		Username:  env.Username,
		Password:  env.Password,
		Database:  env.Database,
		Schema:    schema,
		Warehouse: env.Warehouse,
		Role:      env.Role,
		Timeout:   timeout,
	}
}
