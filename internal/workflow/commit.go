package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"

	"schemalift/internal/common"
	"schemalift/pkg/errors"
)

// Committer promotes a run's final artifacts into the tracked schema tree.
// Promotion is all-or-nothing: every artifact is validated and staged
// before the first tracked file is touched.
type Committer struct{}

// Commit writes the run's final artifacts into the tracked schema tree,
// overwriting strictly by artifact path. Tracked files the run did not
// produce are never touched. It returns the committed file names plus any
// warnings.
//
// When the tracked tree lives inside a git repository, uncommitted local
// changes to a destination file block the commit. A tree outside any
// repository is allowed through with a warning.
func (c *Committer) Commit(schemaDir, workDir string, objects []ExtractedObject) ([]string, []string, error) {
	var warnings []string

	finalDir := filepath.Join(workDir, finalDirName)
	contents := make(map[string][]byte, len(objects))
	for _, obj := range objects {
		data, err := os.ReadFile(filepath.Join(finalDir, obj.File)) // #nosec G304
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrCodeFileNotFound,
				fmt.Sprintf("final artifact for %s is missing", obj.FQN)).
				WithSuggestions("Run the generate stage again")
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			return nil, nil, errors.New(errors.ErrCodeValidationFailed,
				fmt.Sprintf("final artifact for %s is empty", obj.FQN))
		}
		contents[obj.File] = data
	}

	warning, err := c.checkGitState(schemaDir, contents)
	if err != nil {
		return nil, nil, err
	}
	if warning != "" {
		warnings = append(warnings, warning)
	}

	files, err := c.writeTracked(schemaDir, contents)
	if err != nil {
		return nil, nil, err
	}
	return files, warnings, nil
}

// checkGitState refuses to overwrite destination files that carry
// uncommitted modifications. Only the paths this run writes are examined;
// untracked files, including the run's own working area, are ignored.
func (c *Committer) checkGitState(schemaDir string, contents map[string][]byte) (string, error) {
	repo, err := gogit.PlainOpenWithOptions(schemaDir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err == gogit.ErrRepositoryNotExists {
		return fmt.Sprintf("%s is not inside a git repository; committed files will not be version controlled", schemaDir), nil
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeFileOperation, "failed to open git repository")
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeFileOperation, "failed to access git worktree")
	}
	status, err := wt.Status()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeFileOperation, "failed to read git status")
	}

	absSchema, err := filepath.Abs(schemaDir)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeFileOperation, "failed to resolve schema directory")
	}
	root := wt.Filesystem.Root()

	destinations := make(map[string]bool, len(contents))
	for file := range contents {
		destinations[filepath.Join(absSchema, file)] = true
	}

	for path, st := range status {
		if !destinations[filepath.Join(root, path)] {
			continue
		}
		if st.Staging == gogit.Untracked && st.Worktree == gogit.Untracked {
			continue
		}
		if st.Staging == gogit.Unmodified && st.Worktree == gogit.Unmodified {
			continue
		}
		return "", errors.ConflictError(path)
	}

	return "", nil
}

// writeTracked lands the staged contents in the schema directory, one file
// per artifact path. New files are written to a staging directory on the
// same volume first, so each final move is a rename. Files already in the
// directory under other names are left alone.
func (c *Committer) writeTracked(schemaDir string, contents map[string][]byte) ([]string, error) {
	if err := os.MkdirAll(schemaDir, common.DirPermissionNormal); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create schema directory")
	}

	staging, err := os.MkdirTemp(schemaDir, ".commit-")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create staging directory")
	}
	defer os.RemoveAll(staging)

	for file, data := range contents {
		if err := os.WriteFile(filepath.Join(staging, file), data, common.FilePermissionNormal); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to stage committed file")
		}
	}

	files := make([]string, 0, len(contents))
	for file := range contents {
		if err := os.Rename(filepath.Join(staging, file), filepath.Join(schemaDir, file)); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCommitConflict,
				fmt.Sprintf("failed to move %s into the tracked tree", file))
		}
		files = append(files, file)
	}

	return files, nil
}
