package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/snowflakedb/gosnowflake"

	"schemalift/pkg/errors"
)

// Service provides Snowflake database operations
type Service struct {
	db        *sql.DB
	config    Config
	connected bool
}

// Config holds Snowflake connection configuration
type Config struct {
	Account   string
	Username  string
	Password  string
	Database  string
	Schema    string
	Warehouse string
	Role      string
	Timeout   time.Duration
}

// NewService creates a new Snowflake service
func NewService(config Config) *Service {
	return &Service{config: config}
}

// Connect establishes a connection to Snowflake
func (s *Service) Connect() error {
	if s.connected {
		return nil
	}

	dsn := fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s&role=%s",
		s.config.Username,
		s.config.Password,
		s.config.Account,
		s.config.Database,
		s.config.Schema,
		s.config.Warehouse,
		s.config.Role,
	)

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return errors.ConnectionError("Failed to open Snowflake connection", err).
			WithContext("account", s.config.Account).
			WithContext("warehouse", s.config.Warehouse)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)

	ctx, cancel := s.getContext()
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()

		if strings.Contains(err.Error(), "authentication") {
			return errors.New(errors.ErrCodeAuthenticationFailed, "Authentication failed").
				WithContext("user", s.config.Username).
				WithSuggestions(
					"Verify your username and password",
					"Check if your account is locked",
				)
		}

		return errors.ConnectionError("Failed to connect to Snowflake", err).
			WithContext("account", s.config.Account).
			AsRecoverable()
	}

	s.db = db
	s.connected = true
	return nil
}

// Close closes the database connection
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	s.connected = false
	return nil
}

// ObjectRef identifies one schema object returned by ListSchemaObjects
type ObjectRef struct {
	Kind     string // Snowflake object type, e.g. "TABLE"
	Name     string
	Database string
	Schema   string
}

// FQN returns the fully qualified object name
func (r ObjectRef) FQN() string {
	return fmt.Sprintf("%s.%s.%s", r.Database, r.Schema, r.Name)
}

// objectTypes lists the object kinds captured from a schema, in dependency
// order, with the SHOW command used to enumerate each.
var objectTypes = []struct {
	Kind string
	Show string
}{
	{"FILE FORMAT", "SHOW FILE FORMATS IN SCHEMA %s.%s"},
	{"SEQUENCE", "SHOW SEQUENCES IN SCHEMA %s.%s"},
	{"STAGE", "SHOW STAGES IN SCHEMA %s.%s"},
	{"TABLE", "SHOW TABLES IN SCHEMA %s.%s"},
	{"VIEW", "SHOW VIEWS IN SCHEMA %s.%s"},
	{"MATERIALIZED VIEW", "SHOW MATERIALIZED VIEWS IN SCHEMA %s.%s"},
	{"DYNAMIC TABLE", "SHOW DYNAMIC TABLES IN SCHEMA %s.%s"},
	{"STREAM", "SHOW STREAMS IN SCHEMA %s.%s"},
	{"PIPE", "SHOW PIPES IN SCHEMA %s.%s"},
	{"TASK", "SHOW TASKS IN SCHEMA %s.%s"},
}

// IsUserDefinedObject filters out system-managed objects
func IsUserDefinedObject(name string) bool {
	if name == "" {
		return false
	}
	upper := strings.ToUpper(name)
	return !strings.HasPrefix(upper, "SYSTEM$") && !strings.HasPrefix(upper, "INFORMATION_SCHEMA")
}

// ListSchemaObjects enumerates every user-defined object in the schema.
// Object kinds whose SHOW command fails are skipped; not every Snowflake
// edition supports every kind.
func (s *Service) ListSchemaObjects(ctx context.Context, database, schema string) ([]ObjectRef, error) {
	if !s.connected {
		return nil, errors.New(errors.ErrCodeConnectionFailed, "Not connected to database")
	}

	var refs []ObjectRef
	for _, ot := range objectTypes {
		query := fmt.Sprintf(ot.Show, database, schema)
		names, err := s.queryNameColumn(ctx, query)
		if err != nil {
			continue
		}
		for _, name := range names {
			if IsUserDefinedObject(name) {
				refs = append(refs, ObjectRef{
					Kind:     ot.Kind,
					Name:     name,
					Database: database,
					Schema:   schema,
				})
			}
		}
	}
	return refs, nil
}

// GetObjectDDL fetches the DDL text for one object verbatim
func (s *Service) GetObjectDDL(ctx context.Context, ref ObjectRef) (string, error) {
	if !s.connected {
		return "", errors.New(errors.ErrCodeConnectionFailed, "Not connected to database")
	}

	query := fmt.Sprintf("SELECT GET_DDL('%s', '%s')", ref.Kind, ref.FQN())
	row := s.db.QueryRowContext(ctx, query)

	var ddl string
	if err := row.Scan(&ddl); err != nil {
		return "", errors.SQLError(
			fmt.Sprintf("Failed to get DDL for %s %s", ref.Kind, ref.FQN()), query, err)
	}

	ddl = strings.TrimSpace(ddl)
	if !strings.HasSuffix(ddl, ";") {
		ddl += ";"
	}
	return ddl, nil
}

// Grant represents one privilege granted on the schema
type Grant struct {
	Privilege   string
	GrantedTo   string
	Grantee     string
	GrantOption bool
}

// GetSchemaGrants returns the grants on the schema itself
func (s *Service) GetSchemaGrants(ctx context.Context, database, schema string) ([]Grant, error) {
	if !s.connected {
		return nil, errors.New(errors.ErrCodeConnectionFailed, "Not connected to database")
	}

	query := fmt.Sprintf("SHOW GRANTS ON SCHEMA %s.%s", database, schema)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.SQLError("Failed to list schema grants", query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	colIndex := make(map[string]int, len(cols))
	for i, c := range cols {
		colIndex[strings.ToLower(c)] = i
	}

	var grants []Grant
	for rows.Next() {
		values := make([]interface{}, len(cols))
		valuePtrs := make([]interface{}, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		g := Grant{
			Privilege:   stringAt(values, colIndex, "privilege"),
			GrantedTo:   stringAt(values, colIndex, "granted_to"),
			Grantee:     stringAt(values, colIndex, "grantee_name"),
			GrantOption: strings.EqualFold(stringAt(values, colIndex, "grant_option"), "true"),
		}
		if g.Privilege != "" && g.Grantee != "" && g.GrantedTo != "" {
			grants = append(grants, g)
		}
	}

	return grants, rows.Err()
}

// ExecuteSQL executes SQL statements inside one transaction, switching to
// the given database and schema first.
func (s *Service) ExecuteSQL(sqlText, database, schema string) error {
	if !s.connected {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to database").
			WithSuggestions("Call Connect() before executing SQL")
	}

	ctx, cancel := s.getContext()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to begin transaction")
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("USE DATABASE %s", database)); err != nil {
		_ = tx.Rollback()
		return errors.SQLError(
			fmt.Sprintf("Failed to use database %s", database),
			fmt.Sprintf("USE DATABASE %s", database), err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("USE SCHEMA %s", schema)); err != nil {
		_ = tx.Rollback()
		return errors.SQLError(
			fmt.Sprintf("Failed to use schema %s", schema),
			fmt.Sprintf("USE SCHEMA %s", schema), err)
	}

	statements := SplitStatements(sqlText)
	for i, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return errors.SQLError(
				fmt.Sprintf("Failed to execute statement %d", i+1), stmt, err).
				WithContext("statement_index", i+1).
				WithContext("total_statements", len(statements))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to commit transaction")
	}

	return nil
}

// TestConnection pings the database, connecting first if needed
func (s *Service) TestConnection() error {
	if !s.connected {
		if err := s.Connect(); err != nil {
			return err
		}
	}

	ctx, cancel := s.getContext()
	defer cancel()

	return s.db.PingContext(ctx)
}

// Helper methods

func (s *Service) getContext() (context.Context, context.CancelFunc) {
	timeout := s.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

// queryNameColumn runs a SHOW command and returns the "name" column values
func (s *Service) queryNameColumn(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	nameIdx := -1
	for i, c := range cols {
		if strings.EqualFold(c, "name") {
			nameIdx = i
			break
		}
	}
	if nameIdx == -1 {
		return nil, fmt.Errorf("no name column in result of %q", query)
	}

	var names []string
	for rows.Next() {
		values := make([]interface{}, len(cols))
		valuePtrs := make([]interface{}, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		switch v := values[nameIdx].(type) {
		case string:
			names = append(names, v)
		case []byte:
			names = append(names, string(v))
		}
	}

	return names, rows.Err()
}

func stringAt(values []interface{}, colIndex map[string]int, col string) string {
	idx, ok := colIndex[col]
	if !ok || idx >= len(values) {
		return ""
	}
	switch v := values[idx].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// SplitStatements splits SQL text on semicolons not inside string literals
func SplitStatements(sqlText string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := rune(0)

	for i, char := range sqlText {
		if !inString {
			if char == '\'' || char == '"' {
				inString = true
				stringChar = char
			} else if char == ';' {
				if i == 0 || sqlText[i-1] != '\\' {
					statements = append(statements, current.String())
					current.Reset()
					continue
				}
			}
		} else {
			if char == stringChar && (i == 0 || sqlText[i-1] != '\\') {
				inString = false
			}
		}
		current.WriteRune(char)
	}

	if current.Len() > 0 {
		statements = append(statements, current.String())
	}

	return statements
}

// ValidateConfig validates the Snowflake configuration
func ValidateConfig(config Config) error {
	if config.Account == "" {
		return fmt.Errorf("account is required")
	}
	if config.Username == "" {
		return fmt.Errorf("username is required")
	}
	if config.Password == "" {
		return fmt.Errorf("password is required")
	}
	if config.Warehouse == "" {
		return fmt.Errorf("warehouse is required")
	}
	if config.Role == "" {
		return fmt.Errorf("role is required")
	}
	return nil
}
