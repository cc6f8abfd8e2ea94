package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemalift/pkg/errors"
)

func candidateAt(text, file, object, literal, replacement string) Candidate {
	offset := strings.Index(text, literal)
	return Candidate{
		ID:          CandidateID(file, offset, literal),
		File:        file,
		Object:      object,
		Offset:      offset,
		Length:      len(literal),
		Literal:     literal,
		Replacement: replacement,
	}
}

func acceptAll(candidates []Candidate) map[string]Decision {
	decisions := map[string]Decision{}
	for _, c := range candidates {
		decisions[c.ID] = Decision{CandidateID: c.ID, Kind: DecisionAccept, Replacement: c.Replacement}
	}
	return decisions
}

func TestGenerateAppliesSubstitutions(t *testing.T) {
	workDir := t.TempDir()
	text := "create view V as select * from PLATFORM_SIT.DATA_AMS.T join PLATFORM_SIT.DATA_AMS.U;\n"
	obj := writeRaw(t, workDir, "000__VIEW__V.sql", text)

	first := candidateAt(text, obj.File, obj.FQN, "PLATFORM_SIT", "{{ DB_BASE }}_{{ ENV }}")
	second := first
	second.Offset = strings.LastIndex(text, "PLATFORM_SIT")
	second.ID = CandidateID(obj.File, second.Offset, "PLATFORM_SIT")
	candidates := []Candidate{first, second}

	analysis := &Analysis{Candidates: candidates}
	artifacts, failures := (&Generator{}).Generate(workDir, []ExtractedObject{obj}, analysis, acceptAll(candidates))
	require.Empty(t, failures)
	require.Len(t, artifacts, 1)
	assert.Equal(t, 2, artifacts[0].Applied)

	final, err := os.ReadFile(filepath.Join(workDir, finalDirName, obj.File))
	require.NoError(t, err)
	assert.Equal(t,
		"create view V as select * from {{ DB_BASE }}_{{ ENV }}.DATA_AMS.T join {{ DB_BASE }}_{{ ENV }}.DATA_AMS.U;\n",
		string(final))
}

func TestGenerateHonorsRejectAndEdit(t *testing.T) {
	workDir := t.TempDir()
	text := "grant usage on warehouse LOAD_WH_SIT to role ANALYST_SIT;\n"
	obj := writeRaw(t, workDir, "000__GRANTS__S.sql", text)

	wh := candidateAt(text, obj.File, obj.FQN, "LOAD_WH_SIT", "LOAD_WH_{{ ENV }}")
	role := candidateAt(text, obj.File, obj.FQN, "ANALYST_SIT", "ANALYST_{{ ENV }}")
	analysis := &Analysis{Candidates: []Candidate{wh, role}}

	decisions := map[string]Decision{
		wh.ID:   {Kind: DecisionReject},
		role.ID: {Kind: DecisionEdit, Replacement: "ANALYST_{{ ENV }}_RO"},
	}

	artifacts, failures := (&Generator{}).Generate(workDir, []ExtractedObject{obj}, analysis, decisions)
	require.Empty(t, failures)
	assert.Equal(t, 1, artifacts[0].Applied)

	final, err := os.ReadFile(filepath.Join(workDir, finalDirName, obj.File))
	require.NoError(t, err)
	assert.Equal(t, "grant usage on warehouse LOAD_WH_SIT to role ANALYST_{{ ENV }}_RO;\n", string(final))
}

func TestGenerateDetectsStaleCandidate(t *testing.T) {
	workDir := t.TempDir()
	text := "select * from PLATFORM_SIT.DATA_AMS.T;\n"
	obj := writeRaw(t, workDir, "000__VIEW__V.sql", text)

	c := candidateAt(text, obj.File, obj.FQN, "PLATFORM_SIT", "{{ DB_BASE }}_{{ ENV }}")
	analysis := &Analysis{Candidates: []Candidate{c}}

	// the raw file drifts after analysis
	require.NoError(t, os.WriteFile(
		filepath.Join(workDir, rawDirName, obj.File),
		[]byte("select * from PLATFORM_DEV.DATA_AMS.T;\n"), 0o644))

	artifacts, failures := (&Generator{}).Generate(workDir, []ExtractedObject{obj}, analysis, acceptAll(analysis.Candidates))
	assert.Empty(t, artifacts)
	require.Len(t, failures, 1)
	assert.Equal(t, errors.ErrCodeStaleCandidate, errors.GetErrorCode(failures[0]))
}

func TestGeneratePartialFailureKeepsSuccesses(t *testing.T) {
	workDir := t.TempDir()

	good := writeRaw(t, workDir, "000__TABLE__GOOD.sql", "create table GOOD (id number);\n")
	badText := "select * from PLATFORM_SIT.DATA_AMS.T;\n"
	bad := writeRaw(t, workDir, "001__VIEW__BAD.sql", badText)

	c := candidateAt(badText, bad.File, bad.FQN, "PLATFORM_SIT", "{{ DB_BASE }}_{{ ENV }}")
	c.Offset += 3 // recorded position no longer lines up
	analysis := &Analysis{Candidates: []Candidate{c}}

	artifacts, failures := (&Generator{}).Generate(workDir, []ExtractedObject{good, bad}, analysis, acceptAll(analysis.Candidates))
	require.Len(t, failures, 1)
	require.Len(t, artifacts, 1)
	assert.Equal(t, good.File, artifacts[0].File)

	_, err := os.Stat(filepath.Join(workDir, finalDirName, good.File))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(workDir, finalDirName, bad.File))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateRequiresDecisions(t *testing.T) {
	workDir := t.TempDir()
	text := "select * from PLATFORM_SIT.DATA_AMS.T;\n"
	obj := writeRaw(t, workDir, "000__VIEW__V.sql", text)

	c := candidateAt(text, obj.File, obj.FQN, "PLATFORM_SIT", "{{ DB_BASE }}_{{ ENV }}")
	analysis := &Analysis{Candidates: []Candidate{c}}

	_, failures := (&Generator{}).Generate(workDir, []ExtractedObject{obj}, analysis, map[string]Decision{})
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "no decision")
}

func TestGenerateCopiesUntouchedObjects(t *testing.T) {
	workDir := t.TempDir()
	text := "create table PLAIN (id number);\n"
	obj := writeRaw(t, workDir, "000__TABLE__PLAIN.sql", text)

	artifacts, failures := (&Generator{}).Generate(workDir, []ExtractedObject{obj}, &Analysis{}, map[string]Decision{})
	require.Empty(t, failures)
	require.Len(t, artifacts, 1)
	assert.Equal(t, 0, artifacts[0].Applied)

	final, err := os.ReadFile(filepath.Join(workDir, finalDirName, obj.File))
	require.NoError(t, err)
	assert.Equal(t, text, string(final))
}
