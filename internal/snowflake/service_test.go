package snowflake

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	service := NewService(Config{
		Account:   "test123.eu-west-1",
		Username:  "testuser",
		Password:  "testpass",
		Database:  "PLATFORM_SIT",
		Schema:    "DATA_AMS",
		Warehouse: "TEST_WH",
		Role:      "SYSADMIN",
		Timeout:   30 * time.Second,
	})
	service.db = db
	service.connected = true
	return service, mock
}

func TestNewService(t *testing.T) {
	config := Config{Account: "test123", Username: "u"}
	service := NewService(config)

	assert.NotNil(t, service)
	assert.Equal(t, config, service.config)
	assert.False(t, service.connected)
}

func TestValidateConfig(t *testing.T) {
	valid := Config{
		Account:   "test123.eu-west-1",
		Username:  "testuser",
		Password:  "testpass",
		Warehouse: "TEST_WH",
		Role:      "SYSADMIN",
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"missing account", func(c *Config) { c.Account = "" }, "account is required"},
		{"missing username", func(c *Config) { c.Username = "" }, "username is required"},
		{"missing password", func(c *Config) { c.Password = "" }, "password is required"},
		{"missing warehouse", func(c *Config) { c.Warehouse = "" }, "warehouse is required"},
		{"missing role", func(c *Config) { c.Role = "" }, "role is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			err := ValidateConfig(config)
			if tt.errorMsg == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestIsUserDefinedObject(t *testing.T) {
	assert.True(t, IsUserDefinedObject("CUSTOMERS"))
	assert.False(t, IsUserDefinedObject(""))
	assert.False(t, IsUserDefinedObject("SYSTEM$STREAM_X"))
	assert.False(t, IsUserDefinedObject("INFORMATION_SCHEMA_VIEW"))
}

func TestListSchemaObjects(t *testing.T) {
	service, mock := mockService(t)

	// Only tables and views exist; other SHOW commands fail and are skipped
	for _, ot := range objectTypes {
		query := fmt.Sprintf(ot.Show, "PLATFORM_SIT", "DATA_AMS")
		switch ot.Kind {
		case "TABLE":
			mock.ExpectQuery(query).WillReturnRows(
				sqlmock.NewRows([]string{"created_on", "name"}).
					AddRow("2024-01-01", "CUSTOMERS").
					AddRow("2024-01-01", "SYSTEM$HIDDEN"))
		case "VIEW":
			mock.ExpectQuery(query).WillReturnRows(
				sqlmock.NewRows([]string{"created_on", "name"}).
					AddRow("2024-01-01", "V_CLIENT_SUMMARY"))
		default:
			mock.ExpectQuery(query).WillReturnError(fmt.Errorf("unsupported"))
		}
	}

	refs, err := service.ListSchemaObjects(context.Background(), "PLATFORM_SIT", "DATA_AMS")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "TABLE", refs[0].Kind)
	assert.Equal(t, "CUSTOMERS", refs[0].Name)
	assert.Equal(t, "PLATFORM_SIT.DATA_AMS.CUSTOMERS", refs[0].FQN())
	assert.Equal(t, "VIEW", refs[1].Kind)
}

func TestGetObjectDDL(t *testing.T) {
	service, mock := mockService(t)

	ref := ObjectRef{Kind: "TABLE", Name: "CUSTOMERS", Database: "PLATFORM_SIT", Schema: "DATA_AMS"}
	mock.ExpectQuery("SELECT GET_DDL").WillReturnRows(
		sqlmock.NewRows([]string{"ddl"}).AddRow("create or replace TABLE CUSTOMERS (ID NUMBER)"))

	ddl, err := service.GetObjectDDL(context.Background(), ref)
	require.NoError(t, err)
	// Trailing semicolon is always appended
	assert.Equal(t, "create or replace TABLE CUSTOMERS (ID NUMBER);", ddl)
}

func TestGetSchemaGrants(t *testing.T) {
	service, mock := mockService(t)

	mock.ExpectQuery("SHOW GRANTS ON SCHEMA PLATFORM_SIT.DATA_AMS").WillReturnRows(
		sqlmock.NewRows([]string{"created_on", "privilege", "granted_on", "name", "granted_to", "grantee_name", "grant_option"}).
			AddRow("2024-01-01", "USAGE", "SCHEMA", "DATA_AMS", "ROLE", "ANALYST_SIT", "false").
			AddRow("2024-01-01", "OWNERSHIP", "SCHEMA", "DATA_AMS", "ROLE", "SYSADMIN", "true"))

	grants, err := service.GetSchemaGrants(context.Background(), "PLATFORM_SIT", "DATA_AMS")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "USAGE", grants[0].Privilege)
	assert.Equal(t, "ANALYST_SIT", grants[0].Grantee)
	assert.False(t, grants[0].GrantOption)
	assert.True(t, grants[1].GrantOption)
}

func TestExecuteSQL(t *testing.T) {
	service, mock := mockService(t)

	mock.ExpectBegin()
	mock.ExpectExec("USE DATABASE PLATFORM_DEV").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("USE SCHEMA DATA_AMS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE CUSTOMERS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE VIEW V_CLIENT").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := service.ExecuteSQL(
		"CREATE TABLE CUSTOMERS (ID NUMBER);\nCREATE VIEW V_CLIENT AS SELECT 1;",
		"PLATFORM_DEV", "DATA_AMS")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSQLRollsBackOnFailure(t *testing.T) {
	service, mock := mockService(t)

	mock.ExpectBegin()
	mock.ExpectExec("USE DATABASE PLATFORM_DEV").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("USE SCHEMA DATA_AMS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE BROKEN").WillReturnError(fmt.Errorf("syntax error"))
	mock.ExpectRollback()

	err := service.ExecuteSQL("CREATE TABLE BROKEN (;", "PLATFORM_DEV", "DATA_AMS")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSQLNotConnected(t *testing.T) {
	service := NewService(Config{})
	err := service.ExecuteSQL("SELECT 1;", "DB", "SCHEMA")
	assert.Error(t, err)
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want int
	}{
		{"two statements", "SELECT 1; SELECT 2;", 2},
		{"semicolon in string", "SELECT 'a;b'; SELECT 2;", 2},
		{"no trailing semicolon", "SELECT 1", 1},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitStatements(tt.sql)
			var nonEmpty int
			for _, s := range got {
				if len(s) > 0 && s != " " {
					nonEmpty++
				}
			}
			assert.Equal(t, tt.want, nonEmpty)
		})
	}
}

func TestClose(t *testing.T) {
	service, mock := mockService(t)
	mock.ExpectClose()

	require.NoError(t, service.Close())
	assert.False(t, service.connected)

	// Closing again is a no-op
	assert.NoError(t, service.Close())
}
