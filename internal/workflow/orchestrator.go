package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"schemalift/pkg/errors"
	"schemalift/pkg/models"
)

// Orchestrator enforces the stage ordering and owns the transitions. Each
// public method is one CLI invocation; between calls all progress lives on
// disk.
type Orchestrator struct {
	store      *Store
	templating models.Templating
	roleMap    map[string]string
}

// NewOrchestrator builds an orchestrator over a state store
func NewOrchestrator(store *Store, templating models.Templating, roleMap map[string]string) *Orchestrator {
	return &Orchestrator{store: store, templating: templating, roleMap: roleMap}
}

// Extract starts a new run: it captures the schema's DDL, scans it, and
// persists the run at the extracted stage. An existing unfinished run
// blocks a new extraction; a committed run is terminal and is replaced.
func (o *Orchestrator) Extract(ctx context.Context, source SchemaSource, schema, connection, database string) (*Run, *Analysis, error) {
	existing, err := o.store.Load(schema)
	if err != nil && errors.GetErrorCode(err) != errors.ErrCodeRunNotFound {
		return nil, nil, err
	}
	if existing != nil {
		if !existing.Stage.Terminal() {
			return nil, nil, errors.New(errors.ErrCodeRunExists,
				fmt.Sprintf("schema %s already has a run in progress (stage: %s)", schema, existing.Stage)).
				WithContext("schema", schema).
				WithContext("stage", string(existing.Stage)).
				WithSuggestions(
					fmt.Sprintf("Resume it with 'schemalift workflow --workflow status --schema %s'", schema),
					fmt.Sprintf("Or discard it with 'schemalift workflow --workflow clean --schema %s'", schema))
		}
		if err := o.store.Delete(schema); err != nil {
			return nil, nil, err
		}
	}

	workDir := o.store.WorkDir(schema)
	run := &Run{
		Schema:     schema,
		ID:         time.Now().UTC().Format("20060102T150405Z"),
		Stage:      StageExtracted,
		Connection: connection,
		Database:   database,
		WorkDir:    workDir,
		CreatedAt:  time.Now().UTC(),
	}

	extractor := NewExtractor(source, o.roleMap)
	objects, err := extractor.Extract(ctx, database, schema, workDir)
	if err != nil {
		return nil, nil, err
	}
	run.ObjectCount = len(objects)

	analyzer := NewAnalyzer(RulesFromConfig(o.templating), database)
	analysis, err := analyzer.Analyze(workDir, objects)
	if err != nil {
		return nil, nil, err
	}
	if err := WriteReport(workDir, schema, objects, analysis); err != nil {
		return nil, nil, err
	}

	if err := o.store.Save(run); err != nil {
		return nil, nil, err
	}
	return run, analysis, nil
}

// Review walks the pending candidates with the given prompter. It returns
// the run and whether review is now complete. A run with no candidates
// completes immediately.
func (o *Orchestrator) Review(schema string, prompter Prompter) (*Run, bool, error) {
	run, err := o.store.Load(schema)
	if err != nil {
		return nil, false, err
	}

	switch run.Stage {
	case StageExtracted, StageReviewing:
	case StageReviewed:
		return run, true, nil
	default:
		return nil, false, errors.OrderingError(schema, "review", string(StageExtracted), string(run.Stage))
	}

	analysis, err := LoadAnalysis(run.WorkDir)
	if err != nil {
		return nil, false, err
	}

	if run.Stage != StageReviewing && len(analysis.Candidates) > 0 {
		run.Stage = StageReviewing
		if err := o.store.Save(run); err != nil {
			return nil, false, err
		}
	}

	complete, err := NewReviewer(prompter).Review(run.WorkDir, analysis.Candidates)
	if err != nil {
		return nil, false, err
	}
	if !complete {
		return run, false, nil
	}

	run.Stage = StageReviewed
	if err := o.store.Save(run); err != nil {
		return nil, false, err
	}
	return run, true, nil
}

// Generate produces the final templated files. Per-object failures are
// returned individually; the stage only advances when every object
// generated cleanly, so a later commit is always all-or-nothing.
func (o *Orchestrator) Generate(schema string) (*Run, []FinalArtifact, []error, error) {
	run, err := o.store.Load(schema)
	if err != nil {
		return nil, nil, nil, err
	}

	switch run.Stage {
	case StageReviewed, StageGenerated:
	default:
		return nil, nil, nil, errors.OrderingError(schema, "generate", string(StageReviewed), string(run.Stage))
	}

	objects, err := LoadManifest(run.WorkDir)
	if err != nil {
		return nil, nil, nil, err
	}
	analysis, err := LoadAnalysis(run.WorkDir)
	if err != nil {
		return nil, nil, nil, err
	}
	decisions, err := LoadDecisions(run.WorkDir)
	if err != nil {
		return nil, nil, nil, err
	}

	if pending := Undecided(analysis.Candidates, decisions); len(pending) > 0 {
		return nil, nil, nil, errors.OrderingError(schema, "generate", string(StageReviewed), string(StageReviewing)).
			WithContext("undecided", len(pending))
	}

	artifacts, failures := (&Generator{}).Generate(run.WorkDir, objects, analysis, decisions)
	if len(failures) > 0 {
		return run, artifacts, failures, nil
	}

	run.Stage = StageGenerated
	if err := o.store.Save(run); err != nil {
		return nil, nil, nil, err
	}
	return run, artifacts, nil, nil
}

// Commit promotes the final artifacts into the tracked schema tree, marks
// the run committed, and prunes the working area down to the run record.
func (o *Orchestrator) Commit(schema string) (*Run, []string, []string, error) {
	run, err := o.store.Load(schema)
	if err != nil {
		return nil, nil, nil, err
	}

	if run.Stage != StageGenerated {
		return nil, nil, nil, errors.OrderingError(schema, "commit", string(StageGenerated), string(run.Stage))
	}

	objects, err := LoadManifest(run.WorkDir)
	if err != nil {
		return nil, nil, nil, err
	}

	files, warnings, err := (&Committer{}).Commit(o.store.SchemaDir(schema), run.WorkDir, objects)
	if err != nil {
		return nil, nil, nil, err
	}

	run.Stage = StageCommitted
	if err := o.store.Save(run); err != nil {
		return nil, nil, nil, err
	}

	if err := pruneWorkDir(run.WorkDir); err != nil {
		return nil, nil, nil, err
	}
	return run, files, warnings, nil
}

// pruneWorkDir removes everything from a committed run's working area
// except the run record, which keeps the committed stage inspectable.
func pruneWorkDir(workDir string) error {
	for _, name := range []string{rawDirName, analysisDirName, finalDirName, decisionsName, manifestFileName} {
		if err := os.RemoveAll(filepath.Join(workDir, name)); err != nil {
			return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to prune working area")
		}
	}
	return nil
}

// StatusInfo is a point-in-time view of one schema's run
type StatusInfo struct {
	Run        *Run
	Objects    int
	Candidates int
	Decided    int
	Pending    int
	Warnings   []Warning
}

// Status reports the run's stage and progress counters without modifying
// anything.
func (o *Orchestrator) Status(schema string) (*StatusInfo, error) {
	run, err := o.store.Load(schema)
	if err != nil {
		return nil, err
	}

	info := &StatusInfo{Run: run, Objects: run.ObjectCount}
	if run.Stage.Terminal() {
		return info, nil
	}

	analysis, err := LoadAnalysis(run.WorkDir)
	if err != nil {
		return nil, err
	}
	decisions, err := LoadDecisions(run.WorkDir)
	if err != nil {
		return nil, err
	}

	info.Candidates = len(analysis.Candidates)
	info.Decided = len(decisions)
	info.Pending = len(Undecided(analysis.Candidates, decisions))
	info.Warnings = analysis.Warnings
	return info, nil
}

// Clean discards the schema's run and working area entirely. The tracked
// tree is never touched.
func (o *Orchestrator) Clean(schema string) error {
	if _, err := o.store.Load(schema); err != nil {
		return err
	}
	return o.store.Delete(schema)
}
