package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"schemalift/internal/config"
	"schemalift/internal/snowflake"
	"schemalift/internal/ui"
	"schemalift/pkg/errors"
)

var (
	compareSchema   string
	compareSrc      string
	compareDatabase string
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the tracked schema tree against a live schema",
	Long: `List the objects present in the tracked tree, the live schema, or both.
This is a drift check by object name; it does not diff DDL bodies. An object
only in the live schema means the tree is stale and a fresh extraction is
due; an object only in the tree was dropped upstream.`,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().StringVarP(&compareSchema, "schema", "s", "", "Schema to compare")
	compareCmd.Flags().StringVar(&compareSrc, "src", "", "Named source connection")
	compareCmd.Flags().StringVarP(&compareDatabase, "database", "d", "", "Source database (defaults to the connection's database)")
	_ = compareCmd.MarkFlagRequired("schema")
	_ = compareCmd.MarkFlagRequired("src")
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	conn, err := config.ResolveConnection(cfg, compareSrc)
	if err != nil {
		return err
	}

	database := compareDatabase
	if database == "" {
		database = conn.Database
	}
	if database == "" {
		return errors.New(errors.ErrCodeInvalidInput,
			"no source database: pass --database or set one on the connection")
	}

	tracked, err := trackedObjects(cfg.SchemaDir, compareSchema)
	if err != nil {
		return err
	}

	service := snowflake.NewService(connectionConfig(conn, database, compareSchema))
	if err := service.Connect(); err != nil {
		return err
	}
	defer service.Close()

	refs, err := service.ListSchemaObjects(cmd.Context(), database, compareSchema)
	if err != nil {
		return err
	}

	live := map[string]bool{}
	for _, ref := range refs {
		live[ref.Kind+" "+ref.Name] = true
	}

	keys := map[string]bool{}
	for k := range tracked {
		keys[k] = true
	}
	for k := range live {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	ui.ShowHeader(fmt.Sprintf("Compare %s: tracked tree vs %s", compareSchema, database))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Object", "Tracked", "Live", "State"})
	table.SetBorder(false)

	drift := 0
	for _, key := range sorted {
		inTracked := tracked[key]
		inLive := live[key]
		state := color.GreenString("in sync")
		switch {
		case inTracked && !inLive:
			state = color.RedString("dropped upstream")
			drift++
		case !inTracked && inLive:
			state = color.YellowString("not yet extracted")
			drift++
		}
		table.Append([]string{key, mark(inTracked), mark(inLive), state})
	}
	table.Render()

	if drift == 0 {
		ui.ShowSuccess("Tracked tree matches the live schema")
		return nil
	}
	ui.ShowWarning(fmt.Sprintf("%d objects differ; a fresh extraction may be due", drift))
	return nil
}

func mark(present bool) string {
	if present {
		return "yes"
	}
	return "-"
}

// trackedObjects parses the committed file names back into object identities.
// GRANTS pseudo-objects are skipped; they have no SHOW counterpart.
func trackedObjects(schemaRoot, schema string) (map[string]bool, error) {
	files, err := trackedFiles(schemaRoot, schema)
	if err != nil {
		return nil, err
	}

	objects := map[string]bool{}
	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), ".sql")
		parts := strings.SplitN(name, "__", 3)
		if len(parts) != 3 || parts[1] == "GRANTS" {
			continue
		}
		kind := strings.ReplaceAll(parts[1], "_", " ")
		objects[kind+" "+parts[2]] = true
	}
	return objects, nil
}
