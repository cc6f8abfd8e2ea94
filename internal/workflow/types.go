// Package workflow implements the staged extraction pipeline: a live schema
// is pulled into an isolated working area, scanned for environment-coupled
// literals, reviewed by a human operator, patched into templated form, and
// finally promoted into the tracked schema tree. Every stage is a separate
// CLI invocation; progress is persisted so the pipeline can be resumed,
// inspected, or abandoned between stages.
package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Stage is the lifecycle position of a workflow run
type Stage string

const (
	StageNone       Stage = "none"
	StageExtracting Stage = "extracting"
	StageExtracted  Stage = "extracted"
	StageAnalyzing  Stage = "analyzing"
	StageReviewing  Stage = "reviewing"
	StageReviewed   Stage = "reviewed"
	StageGenerating Stage = "generating"
	StageGenerated  Stage = "generated"
	StageCommitted  Stage = "committed"
)

// Terminal reports whether the stage ends the run's lifecycle
func (s Stage) Terminal() bool {
	return s == StageCommitted
}

// Run is the persisted state record for one schema's workflow
type Run struct {
	Schema      string    `json:"schema"`
	ID          string    `json:"id"`
	Stage       Stage     `json:"stage"`
	Connection  string    `json:"connection"`
	Database    string    `json:"database"`
	WorkDir     string    `json:"work_dir"`
	ObjectCount int       `json:"object_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExtractedObject is one database object captured as raw DDL. The DDL text
// lives in File under the run's raw/ directory; the manifest entry carries
// only metadata so repeated extraction of an unchanged schema stays
// byte-identical.
type ExtractedObject struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	FQN    string `json:"fqn"`
	File   string `json:"file"`
	SHA256 string `json:"sha256"`
}

// Confidence tags how safe a proposed substitution looks from context
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// Candidate is one located environment-coupled literal proposed for
// templating. Offset and Length are byte positions within the extracted
// file's text.
type Candidate struct {
	ID          string     `json:"id"`
	File        string     `json:"file"`
	Object      string     `json:"object"`
	Offset      int        `json:"offset"`
	Length      int        `json:"length"`
	Literal     string     `json:"literal"`
	Replacement string     `json:"replacement"`
	Category    string     `json:"category"`
	Confidence  Confidence `json:"confidence"`
	Reason      string     `json:"reason"`
	Context     string     `json:"context"`
}

// CandidateID derives the stable identifier for a candidate. It hashes the
// file, offset, and matched literal, so a decision recorded against it stays
// valid exactly as long as the underlying text is unchanged at that
// position.
func CandidateID(file string, offset int, literal string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", file, offset, literal)))
	return hex.EncodeToString(sum[:])[:12]
}

// DecisionKind is the operator's verdict on a candidate
type DecisionKind string

const (
	DecisionAccept DecisionKind = "accept"
	DecisionReject DecisionKind = "reject"
	DecisionEdit   DecisionKind = "edit"
)

// Decision records one review verdict, keyed by candidate ID
type Decision struct {
	CandidateID string       `json:"candidate_id"`
	Kind        DecisionKind `json:"kind"`
	Replacement string       `json:"replacement,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	DecidedAt   time.Time    `json:"decided_at"`
}

// FinalArtifact describes one post-substitution DDL file in final/
type FinalArtifact struct {
	File    string `json:"file"`
	Object  string `json:"object"`
	Applied int    `json:"applied"`
}

// Rule is one environment-coupled pattern the analyzer scans for. Literal
// is matched case-insensitively; Replacement is the proposed template
// expression. The rule set is configuration, not code: nothing in the
// analyzer knows about specific environment names.
type Rule struct {
	Category    string
	Literal     string
	Replacement string
}

// CrossDatabaseRef is a three-part reference to another database, reported
// for awareness but never proposed for templating.
type CrossDatabaseRef struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Object   string `json:"object"`
	File     string `json:"file"`
	Context  string `json:"context"`
}

// Warning flags risky content found during analysis, such as dynamic SQL
type Warning struct {
	Kind    string `json:"kind"`
	File    string `json:"file"`
	Message string `json:"message"`
}
