package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"schemalift/internal/common"
	"schemalift/pkg/errors"
	"schemalift/pkg/models"
)

// Analysis is the full output of a scan over one run's extracted files
type Analysis struct {
	Candidates []Candidate        `json:"candidates"`
	CrossRefs  []CrossDatabaseRef `json:"cross_database_refs"`
	Warnings   []Warning          `json:"warnings"`
}

// Analyzer scans extracted DDL for environment-coupled literals. It is a
// pure text scanner: it holds no connection and learns every pattern from
// its rule set.
type Analyzer struct {
	rules    []Rule
	database string
}

// NewAnalyzer builds an analyzer for one run. database is the source
// database name; three-part references to any other database are reported
// as cross-database refs.
func NewAnalyzer(rules []Rule, database string) *Analyzer {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	// longest literal first so PLATFORM_SIT beats a bare SIT suffix rule
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Literal) > len(sorted[j].Literal)
	})
	return &Analyzer{rules: sorted, database: database}
}

// RulesFromConfig expands the templating configuration into the concrete
// literal/replacement pairs the analyzer scans for.
func RulesFromConfig(t models.Templating) []Rule {
	var rules []Rule

	for _, tag := range t.EnvironmentTags {
		if t.DBBase != "" {
			rules = append(rules, Rule{
				Category:    "database",
				Literal:     fmt.Sprintf("%s_%s", t.DBBase, tag),
				Replacement: "{{ DB_BASE }}_{{ ENV }}",
			})
		}
		for _, wh := range t.Warehouses {
			rules = append(rules, Rule{
				Category:    "warehouse",
				Literal:     fmt.Sprintf("%s_%s", wh, tag),
				Replacement: fmt.Sprintf("%s_{{ ENV }}", wh),
			})
		}
		for _, rp := range t.RolePrefixes {
			rules = append(rules, Rule{
				Category:    "role",
				Literal:     fmt.Sprintf("%s_%s", rp, tag),
				Replacement: fmt.Sprintf("%s_{{ ENV }}", rp),
			})
		}
	}

	if t.DBPrefix != "" {
		rules = append(rules, Rule{
			Category:    "prefix",
			Literal:     t.DBPrefix,
			Replacement: "{{ DB_PREFIX }}",
		})
	}

	return rules
}

var (
	threePartRef = regexp.MustCompile(`(?i)\b([A-Z_][A-Z0-9_]*)\.([A-Z_][A-Z0-9_]*)\.([A-Z_][A-Z0-9_$]*)\b`)
	dynamicSQL   = regexp.MustCompile(`(?i)\b(EXECUTE\s+IMMEDIATE|IDENTIFIER\s*\()`)
)

// Analyze scans every extracted object and persists the result under the
// run's analysis directory. Candidate IDs are stable across repeated runs
// over unchanged text.
func (a *Analyzer) Analyze(workDir string, objects []ExtractedObject) (*Analysis, error) {
	result := &Analysis{
		Candidates: []Candidate{},
		CrossRefs:  []CrossDatabaseRef{},
		Warnings:   []Warning{},
	}

	for _, obj := range objects {
		text, err := ReadObjectDDL(workDir, obj)
		if err != nil {
			return nil, err
		}

		result.Candidates = append(result.Candidates, a.scan(obj, text)...)
		result.CrossRefs = append(result.CrossRefs, a.crossRefs(obj, text)...)
		result.Warnings = append(result.Warnings, a.warnings(obj, text)...)
	}

	if err := saveAnalysis(workDir, result); err != nil {
		return nil, err
	}
	return result, nil
}

// scan finds rule matches left to right, longest literal first, never
// overlapping. Matching is case insensitive; the candidate records the
// literal exactly as it appears in the file.
func (a *Analyzer) scan(obj ExtractedObject, text string) []Candidate {
	upper := upperASCII(text)
	var candidates []Candidate

	pos := 0
	for pos < len(upper) {
		matched := false
		for _, rule := range a.rules {
			lit := upperASCII(rule.Literal)
			if !strings.HasPrefix(upper[pos:], lit) {
				continue
			}
			if !atIdentBoundary(upper, pos, len(lit)) {
				continue
			}

			actual := text[pos : pos+len(lit)]
			confidence, reason := classify(upper, pos)
			candidates = append(candidates, Candidate{
				ID:          CandidateID(obj.File, pos, actual),
				File:        obj.File,
				Object:      obj.FQN,
				Offset:      pos,
				Length:      len(lit),
				Literal:     actual,
				Replacement: rule.Replacement,
				Category:    rule.Category,
				Confidence:  confidence,
				Reason:      reason,
				Context:     surrounding(text, pos, len(lit)),
			})
			pos += len(lit)
			matched = true
			break
		}
		if !matched {
			pos++
		}
	}

	return candidates
}

// upperASCII folds a-z to A-Z byte by byte. Unlike strings.ToUpper it never
// changes the byte length, so offsets computed on the folded text stay valid
// in the original even when quoted identifiers carry non-ASCII characters.
func upperASCII(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// atIdentBoundary rejects matches embedded inside a longer identifier
func atIdentBoundary(text string, pos, length int) bool {
	if pos > 0 && isIdentChar(text[pos-1]) {
		return false
	}
	if end := pos + length; end < len(text) && isIdentChar(text[end]) {
		return false
	}
	return true
}

// classify grades a match by its syntactic position. References in FROM or
// JOIN clauses are safe to template; names being created and text inside
// string literals need a human eye.
func classify(upper string, offset int) (Confidence, string) {
	lineStart := strings.LastIndexByte(upper[:offset], '\n') + 1
	line := strings.TrimSpace(upper[lineStart:offset])

	if insideStringLiteral(upper, offset) {
		return ConfidenceLow, "inside a string literal"
	}

	if word := lastWord(line); word == "FROM" || word == "JOIN" {
		return ConfidenceHigh, "table reference in " + word + " clause"
	}

	if strings.HasPrefix(line, "CREATE") || strings.HasPrefix(line, "ALTER") {
		return ConfidenceLow, "part of an object name in a DDL statement"
	}

	return ConfidenceLow, "context could not be classified"
}

// insideStringLiteral counts quotes from the start of the file so string
// literals spanning lines are recognized. Doubled '' escapes contribute two
// quotes each and keep the parity intact.
func insideStringLiteral(text string, to int) bool {
	quotes := 0
	for i := 0; i < to; i++ {
		if text[i] == '\'' {
			quotes++
		}
	}
	return quotes%2 == 1
}

func lastWord(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == '('
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func surrounding(text string, offset, length int) string {
	start := offset - 40
	if start < 0 {
		start = 0
	}
	end := offset + length + 40
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text[start:end], "\n", " "))
}

// crossRefs reports three-part references pointing at a different database.
// They are surfaced for awareness only and never proposed for templating.
func (a *Analyzer) crossRefs(obj ExtractedObject, text string) []CrossDatabaseRef {
	var refs []CrossDatabaseRef
	seen := map[string]bool{}

	for _, m := range threePartRef.FindAllStringSubmatchIndex(text, -1) {
		db := text[m[2]:m[3]]
		if strings.EqualFold(db, a.database) {
			continue
		}
		key := strings.ToUpper(text[m[0]:m[1]])
		if seen[key] {
			continue
		}
		seen[key] = true
		refs = append(refs, CrossDatabaseRef{
			Database: db,
			Schema:   text[m[4]:m[5]],
			Object:   text[m[6]:m[7]],
			File:     obj.File,
			Context:  surrounding(text, m[0], m[1]-m[0]),
		})
	}

	return refs
}

func (a *Analyzer) warnings(obj ExtractedObject, text string) []Warning {
	var warnings []Warning
	if m := dynamicSQL.FindString(text); m != "" {
		warnings = append(warnings, Warning{
			Kind: "dynamic-sql",
			File: obj.File,
			Message: fmt.Sprintf(
				"%s contains dynamic SQL (%s); embedded references cannot be scanned reliably",
				obj.FQN, strings.TrimSpace(strings.TrimSuffix(m, "("))),
		})
	}
	return warnings
}

func saveAnalysis(workDir string, analysis *Analysis) error {
	dir := filepath.Join(workDir, analysisDirName)
	if err := os.MkdirAll(dir, common.DirPermissionNormal); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create analysis directory")
	}

	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal analysis")
	}
	return atomicWrite(filepath.Join(dir, candidatesName), data)
}

// LoadAnalysis reads the persisted scan result from a working area
func LoadAnalysis(workDir string) (*Analysis, error) {
	data, err := os.ReadFile(filepath.Join(workDir, analysisDirName, candidatesName)) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileNotFound, "analysis result not found").
			WithSuggestions("Run the extract stage first")
	}

	var analysis Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStateCorrupted, "analysis result is corrupted")
	}
	return &analysis, nil
}
