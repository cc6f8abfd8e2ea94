package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"schemalift/internal/common"
	"schemalift/pkg/errors"
)

// Generator produces the final, templated DDL files by applying accepted
// decisions to the raw extracted text.
type Generator struct{}

// Generate writes one final file per extracted object into workDir/final.
// Accepted and edited substitutions are applied at their recorded byte
// offsets, highest offset first so earlier positions stay valid. Before
// patching, every substitution is verified against the bytes actually
// present; any drift fails that object with a stale-candidate error.
//
// Objects that fail are reported together; files already generated for
// other objects remain on disk.
func (g *Generator) Generate(workDir string, objects []ExtractedObject, analysis *Analysis, decisions map[string]Decision) ([]FinalArtifact, []error) {
	finalDir := filepath.Join(workDir, finalDirName)
	if err := os.MkdirAll(finalDir, common.DirPermissionNormal); err != nil {
		return nil, []error{errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create final directory")}
	}

	byFile := map[string][]Candidate{}
	for _, c := range analysis.Candidates {
		byFile[c.File] = append(byFile[c.File], c)
	}

	var artifacts []FinalArtifact
	var failures []error

	for _, obj := range objects {
		artifact, err := g.generateOne(workDir, finalDir, obj, byFile[obj.File], decisions)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		artifacts = append(artifacts, artifact)
	}

	return artifacts, failures
}

func (g *Generator) generateOne(workDir, finalDir string, obj ExtractedObject, candidates []Candidate, decisions map[string]Decision) (FinalArtifact, error) {
	text, err := ReadObjectDDL(workDir, obj)
	if err != nil {
		return FinalArtifact{}, err
	}

	var patches []Candidate
	for _, c := range candidates {
		d, ok := decisions[c.ID]
		if !ok {
			return FinalArtifact{}, errors.New(errors.ErrCodeWorkflowOrdering,
				fmt.Sprintf("candidate %s in %s has no decision", c.ID, obj.FQN))
		}
		if d.Kind == DecisionReject {
			continue
		}
		c.Replacement = d.Replacement
		patches = append(patches, c)
	}

	sort.Slice(patches, func(i, j int) bool { return patches[i].Offset > patches[j].Offset })

	for _, p := range patches {
		if p.Offset+p.Length > len(text) {
			return FinalArtifact{}, errors.StaleCandidateError(obj.FQN, p.ID, p.Literal, "<out of range>")
		}
		found := text[p.Offset : p.Offset+p.Length]
		if found != p.Literal {
			return FinalArtifact{}, errors.StaleCandidateError(obj.FQN, p.ID, p.Literal, found)
		}
		text = text[:p.Offset] + p.Replacement + text[p.Offset+p.Length:]
	}

	if err := os.WriteFile(filepath.Join(finalDir, obj.File), []byte(text), common.FilePermissionNormal); err != nil {
		return FinalArtifact{}, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("failed to write final file for %s", obj.FQN))
	}

	return FinalArtifact{File: obj.File, Object: obj.FQN, Applied: len(patches)}, nil
}
