package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"schemalift/internal/common"
	"schemalift/pkg/errors"
)

const (
	stateFileName    = "state.json"
	manifestFileName = "objects.json"
	decisionsName    = "decisions.json"
	candidatesName   = "candidates.json"
	reportName       = "report.md"

	rawDirName      = "raw"
	analysisDirName = "analysis"
	finalDirName    = "final"
)

// Store persists one workflow run record per schema. Records live inside
// the run's working area; writes go through a temp file and rename so a
// crash mid-save never leaves a half-written record behind.
type Store struct {
	root string // tracked schema tree root, e.g. "schemas"
}

// NewStore creates a state store over the given schema tree root
func NewStore(root string) *Store {
	return &Store{root: root}
}

// SchemaDir returns the tracked directory for a schema
func (s *Store) SchemaDir(schema string) string {
	return filepath.Join(s.root, common.SanitizeFileName(schema))
}

// WorkDir returns the working-area path for a schema's run
func (s *Store) WorkDir(schema string) string {
	return filepath.Join(s.SchemaDir(schema), ".work")
}

// Load reads the run record for a schema. A missing record yields
// ErrCodeRunNotFound; a corrupt one yields ErrCodeStateCorrupted.
func (s *Store) Load(schema string) (*Run, error) {
	path := filepath.Join(s.WorkDir(schema), stateFileName)

	data, err := os.ReadFile(path) // #nosec G304 - path derives from sanitized schema name
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeRunNotFound,
				fmt.Sprintf("no workflow run found for schema %s", schema)).
				WithContext("schema", schema).
				WithSuggestions(fmt.Sprintf("Start one with 'schemalift workflow --workflow extract --schema %s'", schema))
		}
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to read workflow state")
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStateCorrupted,
			fmt.Sprintf("workflow state for schema %s is corrupted", schema)).
			WithContext("schema", schema).
			WithSuggestions(fmt.Sprintf("Run 'schemalift workflow --workflow clean --schema %s' and start over", schema))
	}

	return &run, nil
}

// Save atomically overwrites the run record. The caller must only invoke
// this after the stage's side effects are durably on disk: stage marked
// complete implies artifacts exist.
func (s *Store) Save(run *Run) error {
	run.UpdatedAt = time.Now().UTC()

	dir := s.WorkDir(run.Schema)
	if err := os.MkdirAll(dir, common.DirPermissionNormal); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create working area")
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal workflow state")
	}

	return atomicWrite(filepath.Join(dir, stateFileName), data)
}

// Delete removes the run record along with its entire working area
func (s *Store) Delete(schema string) error {
	if err := os.RemoveAll(s.WorkDir(schema)); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to delete working area")
	}
	return nil
}

// atomicWrite writes data to path via a temp file in the same directory
// followed by a rename.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to close temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to replace file")
	}
	return nil
}
