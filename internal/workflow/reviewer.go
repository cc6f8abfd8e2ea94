package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"schemalift/pkg/errors"
)

// Verdict is one operator response during review. Quit abandons the session
// without deciding the current candidate.
type Verdict struct {
	Kind        DecisionKind
	Replacement string
	Notes       string
	Quit        bool
}

// Prompter asks the operator for a verdict on one candidate. The CLI
// supplies an interactive implementation; tests supply a scripted one.
type Prompter interface {
	Review(c Candidate, index, total int) (Verdict, error)
}

// Reviewer walks the candidate list, collecting one decision per candidate.
// Every decision is persisted immediately, so an interrupted session
// resumes exactly where it stopped.
type Reviewer struct {
	prompter Prompter
}

// NewReviewer wraps a prompter
func NewReviewer(p Prompter) *Reviewer {
	return &Reviewer{prompter: p}
}

// Review presents each undecided candidate in order. It returns true when
// every candidate has a decision, false when the operator quit early.
func (r *Reviewer) Review(workDir string, candidates []Candidate) (bool, error) {
	decisions, err := LoadDecisions(workDir)
	if err != nil {
		return false, err
	}

	total := len(candidates)
	for i, c := range candidates {
		if _, done := decisions[c.ID]; done {
			continue
		}

		verdict, err := r.prompter.Review(c, i+1, total)
		if err != nil {
			return false, errors.Wrap(err, errors.ErrCodeReviewInterrupted, "review session failed")
		}
		if verdict.Quit {
			return false, nil
		}

		replacement := c.Replacement
		if verdict.Kind == DecisionEdit {
			replacement = verdict.Replacement
		}

		decisions[c.ID] = Decision{
			CandidateID: c.ID,
			Kind:        verdict.Kind,
			Replacement: replacement,
			Notes:       verdict.Notes,
			DecidedAt:   time.Now().UTC(),
		}
		if err := saveDecisions(workDir, decisions); err != nil {
			return false, err
		}
	}

	return true, nil
}

// Undecided returns the candidates that still lack a decision
func Undecided(candidates []Candidate, decisions map[string]Decision) []Candidate {
	var pending []Candidate
	for _, c := range candidates {
		if _, done := decisions[c.ID]; !done {
			pending = append(pending, c)
		}
	}
	return pending
}

// LoadDecisions reads the decision ledger. A missing file means no
// decisions yet and is not an error.
func LoadDecisions(workDir string) (map[string]Decision, error) {
	data, err := os.ReadFile(filepath.Join(workDir, decisionsName)) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Decision{}, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to read decisions")
	}

	var decisions map[string]Decision
	if err := json.Unmarshal(data, &decisions); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStateCorrupted, "decision ledger is corrupted")
	}
	if decisions == nil {
		decisions = map[string]Decision{}
	}
	return decisions, nil
}

func saveDecisions(workDir string, decisions map[string]Decision) error {
	data, err := json.MarshalIndent(decisions, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal decisions")
	}
	return atomicWrite(filepath.Join(workDir, decisionsName), data)
}
