package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemalift/internal/snowflake"
)

// fakeSource is an in-memory SchemaSource for tests
type fakeSource struct {
	refs   []snowflake.ObjectRef
	ddl    map[string]string
	grants []snowflake.Grant
	err    error
}

func (f *fakeSource) ListSchemaObjects(_ context.Context, _, _ string) ([]snowflake.ObjectRef, error) {
	return f.refs, f.err
}

func (f *fakeSource) GetObjectDDL(_ context.Context, ref snowflake.ObjectRef) (string, error) {
	return f.ddl[ref.Name], nil
}

func (f *fakeSource) GetSchemaGrants(_ context.Context, _, _ string) ([]snowflake.Grant, error) {
	return f.grants, nil
}

func testSource() *fakeSource {
	return &fakeSource{
		refs: []snowflake.ObjectRef{
			{Kind: "VIEW", Name: "V_CLIENT", Database: "PLATFORM_SIT", Schema: "DATA_AMS"},
			{Kind: "TABLE", Name: "CUSTOMERS", Database: "PLATFORM_SIT", Schema: "DATA_AMS"},
			{Kind: "TABLE", Name: "ACCOUNTS", Database: "PLATFORM_SIT", Schema: "DATA_AMS"},
		},
		ddl: map[string]string{
			"CUSTOMERS": "create or replace TABLE CUSTOMERS (ID NUMBER);",
			"ACCOUNTS":  "create or replace TABLE ACCOUNTS (ID NUMBER);",
			"V_CLIENT":  "create or replace view V_CLIENT as\nselect * from PLATFORM_SIT.DATA_AMS.CUSTOMERS;",
		},
		grants: []snowflake.Grant{
			{Privilege: "USAGE", GrantedTo: "ROLE", Grantee: "SVC_LEGACY", GrantOption: false},
			{Privilege: "SELECT", GrantedTo: "ROLE", Grantee: "ANALYST_SIT", GrantOption: true},
		},
	}
}

func TestExtractOrdersAndNames(t *testing.T) {
	workDir := t.TempDir()
	roleMap := map[string]string{"SVC_LEGACY": "SVC_INGEST"}
	extractor := NewExtractor(testSource(), roleMap)

	objects, err := extractor.Extract(context.Background(), "PLATFORM_SIT", "DATA_AMS", workDir)
	require.NoError(t, err)
	require.Len(t, objects, 4)

	// tables before views, names sorted within a kind, grants last
	assert.Equal(t, "000__TABLE__ACCOUNTS.sql", objects[0].File)
	assert.Equal(t, "001__TABLE__CUSTOMERS.sql", objects[1].File)
	assert.Equal(t, "002__VIEW__V_CLIENT.sql", objects[2].File)
	assert.Equal(t, "003__GRANTS__DATA_AMS.sql", objects[3].File)
	assert.Equal(t, "PLATFORM_SIT.DATA_AMS.CUSTOMERS", objects[1].FQN)

	text, err := ReadObjectDDL(workDir, objects[1])
	require.NoError(t, err)
	assert.Equal(t, "create or replace TABLE CUSTOMERS (ID NUMBER);\n", text)
}

func TestExtractRendersGrants(t *testing.T) {
	workDir := t.TempDir()
	extractor := NewExtractor(testSource(), map[string]string{"SVC_LEGACY": "SVC_INGEST"})

	objects, err := extractor.Extract(context.Background(), "PLATFORM_SIT", "DATA_AMS", workDir)
	require.NoError(t, err)

	text, err := ReadObjectDDL(workDir, objects[3])
	require.NoError(t, err)
	assert.Contains(t, text, "GRANT SELECT ON SCHEMA PLATFORM_SIT.DATA_AMS TO ROLE ANALYST_SIT WITH GRANT OPTION;")
	// role map rewrote the grantee
	assert.Contains(t, text, "TO ROLE SVC_INGEST;")
	assert.NotContains(t, text, "SVC_LEGACY")
}

func TestExtractIsDeterministic(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	extractor := NewExtractor(testSource(), nil)

	objectsA, err := extractor.Extract(context.Background(), "PLATFORM_SIT", "DATA_AMS", dirA)
	require.NoError(t, err)
	objectsB, err := extractor.Extract(context.Background(), "PLATFORM_SIT", "DATA_AMS", dirB)
	require.NoError(t, err)

	assert.Equal(t, objectsA, objectsB)

	manifestA, err := os.ReadFile(filepath.Join(dirA, manifestFileName))
	require.NoError(t, err)
	manifestB, err := os.ReadFile(filepath.Join(dirB, manifestFileName))
	require.NoError(t, err)
	assert.Equal(t, manifestA, manifestB)
}

func TestExtractEmptySchema(t *testing.T) {
	workDir := t.TempDir()
	extractor := NewExtractor(&fakeSource{}, nil)

	objects, err := extractor.Extract(context.Background(), "PLATFORM_SIT", "EMPTY", workDir)
	require.NoError(t, err)
	assert.Empty(t, objects)

	loaded, err := LoadManifest(workDir)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadManifestRoundTrip(t *testing.T) {
	workDir := t.TempDir()
	extractor := NewExtractor(testSource(), nil)

	objects, err := extractor.Extract(context.Background(), "PLATFORM_SIT", "DATA_AMS", workDir)
	require.NoError(t, err)

	loaded, err := LoadManifest(workDir)
	require.NoError(t, err)
	assert.Equal(t, objects, loaded)
}

func TestLoadManifestMissing(t *testing.T) {
	_, err := LoadManifest(t.TempDir())
	assert.Error(t, err)
}
