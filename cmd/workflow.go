package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"schemalift/internal/config"
	"schemalift/internal/snowflake"
	"schemalift/internal/ui"
	"schemalift/internal/workflow"
	"schemalift/pkg/errors"
	"schemalift/pkg/models"
)

var (
	workflowAction   string
	workflowSchema   string
	workflowSrc      string
	workflowDatabase string
	workflowYes      bool
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Run one stage of the schema templating workflow",
	Long: `Run one stage of the extract-review-generate-commit workflow for a schema.

Stages must run in order; each invocation performs exactly one stage and
persists its progress, so an interrupted workflow resumes where it stopped.

  extract   capture the schema's DDL and scan it for templating candidates
  review    decide each candidate interactively (resumable)
  generate  produce the final templated files from the decisions
  commit    promote the final files into the tracked schema tree
  status    show the run's stage and progress
  clean     discard the run and its working area`,
	RunE: runWorkflow,
}

func init() {
	rootCmd.AddCommand(workflowCmd)

	workflowCmd.Flags().StringVarP(&workflowAction, "workflow", "w", "", "Stage to run: extract, review, generate, commit, status, clean")
	workflowCmd.Flags().StringVarP(&workflowSchema, "schema", "s", "", "Schema the workflow operates on")
	workflowCmd.Flags().StringVar(&workflowSrc, "src", "", "Named source connection (extract only)")
	workflowCmd.Flags().StringVarP(&workflowDatabase, "database", "d", "", "Source database (extract only, defaults to the connection's database)")
	workflowCmd.Flags().BoolVarP(&workflowYes, "yes", "y", false, "Skip confirmation prompts")

	_ = workflowCmd.MarkFlagRequired("workflow")
	_ = workflowCmd.MarkFlagRequired("schema")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store := workflow.NewStore(cfg.SchemaDir)
	orch := workflow.NewOrchestrator(store, cfg.Templating, cfg.RoleMap)

	switch workflowAction {
	case "extract":
		return runExtract(cmd.Context(), cfg, orch)
	case "review":
		return runReview(orch)
	case "generate":
		return runGenerate(orch)
	case "commit":
		return runCommit(orch)
	case "status":
		return runStatus(orch)
	case "clean":
		return runClean(orch)
	default:
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown workflow stage %q", workflowAction)).
			WithSuggestions("Valid stages: extract, review, generate, commit, status, clean")
	}
}

func runExtract(ctx context.Context, cfg *models.Config, orch *workflow.Orchestrator) error {
	if workflowSrc == "" {
		return errors.New(errors.ErrCodeInvalidInput, "extract requires --src naming a source connection")
	}

	conn, err := config.ResolveConnection(cfg, workflowSrc)
	if err != nil {
		return err
	}

	database := workflowDatabase
	if database == "" {
		database = conn.Database
	}
	if database == "" {
		return errors.New(errors.ErrCodeInvalidInput,
			"no source database: pass --database or set one on the connection")
	}

	service := snowflake.NewService(connectionConfig(conn, database, workflowSchema))
	ui.ShowInfo(fmt.Sprintf("Connecting to %s as %s", conn.Account, conn.Username))
	if err := service.Connect(); err != nil {
		return err
	}
	defer service.Close()

	ui.ShowHeader(fmt.Sprintf("Extracting %s.%s", database, workflowSchema))
	run, analysis, err := orch.Extract(ctx, service, workflowSchema, workflowSrc, database)
	if err != nil {
		return err
	}

	ui.ShowSuccess(fmt.Sprintf("Extracted %d objects into %s", run.ObjectCount, run.WorkDir))
	high, low := 0, 0
	for _, c := range analysis.Candidates {
		if c.Confidence == workflow.ConfidenceHigh {
			high++
		} else {
			low++
		}
	}
	ui.ShowInfo(fmt.Sprintf("Found %d templating candidates (%d high confidence, %d need review)",
		len(analysis.Candidates), high, low))
	for _, w := range analysis.Warnings {
		ui.ShowWarning(w.Message)
	}
	if len(analysis.CrossRefs) > 0 {
		ui.ShowInfo(fmt.Sprintf("%d cross-database references noted in the analysis report", len(analysis.CrossRefs)))
	}

	fmt.Println()
	ui.ShowInfo(fmt.Sprintf("Next: schemalift workflow --workflow review --schema %s", workflowSchema))
	return nil
}

func runReview(orch *workflow.Orchestrator) error {
	if !ui.IsInteractive() {
		return errors.New(errors.ErrCodeReviewInterrupted,
			"review needs an interactive terminal").
			WithSuggestions("Run this stage from a terminal, not a pipeline")
	}

	ui.ShowHeader(fmt.Sprintf("Reviewing %s", workflowSchema))
	run, complete, err := orch.Review(workflowSchema, surveyPrompter{})
	if err != nil {
		return err
	}

	if !complete {
		ui.ShowInfo(fmt.Sprintf("Review paused at stage %s; rerun to pick up where you left off", run.Stage))
		return nil
	}

	ui.ShowSuccess("All candidates decided")
	ui.ShowInfo(fmt.Sprintf("Next: schemalift workflow --workflow generate --schema %s", workflowSchema))
	return nil
}

func runGenerate(orch *workflow.Orchestrator) error {
	run, artifacts, failures, err := orch.Generate(workflowSchema)
	if err != nil {
		return err
	}

	for _, a := range artifacts {
		if a.Applied > 0 {
			ui.ShowInfo(fmt.Sprintf("%s: %d substitutions applied", a.File, a.Applied))
		}
	}

	if len(failures) > 0 {
		for _, f := range failures {
			ui.ShowError(f)
		}
		return errors.New(errors.ErrCodeStaleCandidate,
			fmt.Sprintf("%d of %d objects failed to generate; the stage was not advanced", len(failures), run.ObjectCount))
	}

	ui.ShowSuccess(fmt.Sprintf("Generated %d final files", len(artifacts)))
	ui.ShowInfo(fmt.Sprintf("Next: schemalift workflow --workflow commit --schema %s", workflowSchema))
	return nil
}

func runCommit(orch *workflow.Orchestrator) error {
	run, files, warnings, err := orch.Commit(workflowSchema)
	if err != nil {
		return err
	}

	for _, w := range warnings {
		ui.ShowWarning(w)
	}
	ui.ShowSuccess(fmt.Sprintf("Committed %d files for schema %s (run %s)", len(files), workflowSchema, run.ID))
	return nil
}

func runStatus(orch *workflow.Orchestrator) error {
	info, err := orch.Status(workflowSchema)
	if err != nil {
		return err
	}

	ui.PrintSection(fmt.Sprintf("Workflow status: %s", workflowSchema))
	ui.PrintKeyValue("Run", info.Run.ID)
	ui.PrintKeyValue("Stage", string(info.Run.Stage))
	ui.PrintKeyValue("Source", fmt.Sprintf("%s (%s)", info.Run.Database, info.Run.Connection))
	ui.PrintKeyValue("Objects", fmt.Sprintf("%d", info.Objects))
	if !info.Run.Stage.Terminal() {
		ui.PrintKeyValue("Candidates", fmt.Sprintf("%d", info.Candidates))
		ui.PrintKeyValue("Decided", fmt.Sprintf("%d", info.Decided))
		ui.PrintKeyValue("Pending", fmt.Sprintf("%d", info.Pending))
	}
	ui.PrintKeyValue("Updated", info.Run.UpdatedAt.Local().Format(time.RFC1123))
	return nil
}

func runClean(orch *workflow.Orchestrator) error {
	if !workflowYes && ui.IsInteractive() {
		ok, err := ui.Confirm(
			fmt.Sprintf("Discard the workflow run for %s, including all decisions?", workflowSchema), false)
		if err != nil {
			return err
		}
		if !ok {
			ui.ShowInfo("Nothing discarded")
			return nil
		}
	}

	if err := orch.Clean(workflowSchema); err != nil {
		return err
	}
	ui.ShowSuccess(fmt.Sprintf("Discarded the workflow run for %s", workflowSchema))
	return nil
}

// surveyPrompter asks the operator about one candidate at a time
type surveyPrompter struct{}

func (surveyPrompter) Review(c workflow.Candidate, index, total int) (workflow.Verdict, error) {
	fmt.Println()
	fmt.Printf("%s %s\n", ui.ColorBold(fmt.Sprintf("[%d/%d]", index, total)), ui.ColorDim(c.Object))
	fmt.Printf("  %s\n", ui.ColorDim("..."+c.Context+"..."))
	fmt.Printf("  %s %s %s\n", ui.ColorWarning(c.Literal), "->", ui.ColorSuccess(c.Replacement))
	confidence := ui.ColorSuccess(string(c.Confidence))
	if c.Confidence == workflow.ConfidenceLow {
		confidence = ui.ColorWarning(string(c.Confidence))
	}
	fmt.Printf("  confidence: %s (%s)\n", confidence, c.Reason)

	choice, err := ui.Select("Decision", []string{
		"Accept the suggested replacement",
		"Reject and keep the literal",
		"Edit the replacement",
		"Quit and resume later",
	})
	if err != nil {
		return workflow.Verdict{}, err
	}

	switch choice {
	case "Accept the suggested replacement":
		return workflow.Verdict{Kind: workflow.DecisionAccept}, nil
	case "Reject and keep the literal":
		return workflow.Verdict{Kind: workflow.DecisionReject}, nil
	case "Edit the replacement":
		replacement, err := ui.Input("Replacement", c.Replacement, "Template expression to substitute for the literal")
		if err != nil {
			return workflow.Verdict{}, err
		}
		return workflow.Verdict{Kind: workflow.DecisionEdit, Replacement: replacement}, nil
	default:
		return workflow.Verdict{Quit: true}, nil
	}
}

// connectionConfig maps a configured connection onto service settings
func connectionConfig(conn models.Connection, database, schema string) snowflake.Config {
	timeout := 30 * time.Second
	if conn.Timeout != "" {
		if d, err := time.ParseDuration(conn.Timeout); err == nil {
			timeout = d
		}
	}
	return snowflake.Config{
		Account:   conn.Account,
		Username:  conn.Username,
		Password:  conn.Password,
		Database:  database,
		Schema:    schema,
		Warehouse: conn.Warehouse,
		Role:      conn.Role,
		Timeout:   timeout,
	}
}
