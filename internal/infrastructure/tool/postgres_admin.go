package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"

	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	pgRowCap   = 200
	pgValueCap = 300
)

// PostgresAdminTool inspects and queries PostgreSQL servers. Read-only:
// only SELECT/WITH/EXPLAIN/SHOW statements pass the statement guard.
type PostgresAdminTool struct {
	defaultDSN string
	logger     *zap.Logger

	mu    sync.Mutex
	conns map[string]*gorm.DB

	// openDB is swapped out in tests
	openDB func(dsn string) (*gorm.DB, error)
}

func NewPostgresAdminTool(defaultDSN string, logger *zap.Logger) *PostgresAdminTool {
	return &PostgresAdminTool{
		defaultDSN: defaultDSN,
		logger:     logger.With(zap.String("tool", "postgres_admin")),
		conns:      make(map[string]*gorm.DB),
		openDB: func(dsn string) (*gorm.DB, error) {
			return gorm.Open(postgres.Open(dsn), &gorm.Config{
				Logger: gormlogger.Default.LogMode(gormlogger.Silent),
			})
		},
	}
}

func (t *PostgresAdminTool) Name() string          { return "postgres_admin" }
func (t *PostgresAdminTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *PostgresAdminTool) Description() string {
	return "PostgreSQL diagnostics: run read-only queries, inspect schemas, explain-analyze statements, view server activity."
}

func (t *PostgresAdminTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{"query", "schema", "explain_analyze", "activity"},
			},
			"connection_string": map[string]interface{}{
				"type":        "string",
				"description": "Postgres DSN. Omit to use the configured default.",
			},
			"query": map[string]interface{}{
				"type":        "string",
				"description": "SQL for 'query' and 'explain_analyze'.",
			},
			"table_name": map[string]interface{}{
				"type":        "string",
				"description": "Restrict 'schema' to one table.",
			},
		},
		"required": []string{"action"},
	}
}

func (t *PostgresAdminTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	dsn := strings.TrimSpace(strArg(args, "connection_string"))
	if dsn == "" {
		dsn = t.defaultDSN
	}
	db, err := t.connect(dsn)
	if err != nil {
		return fail("Error: cannot connect to %s: %v", redactDSN(dsn), err)
	}

	switch strArg(args, "action") {
	case "query":
		query := strings.TrimSpace(strArg(args, "query"))
		if query == "" {
			return fail("Error: 'query' parameter is required")
		}
		if !isReadOnlySQL(query) {
			return fail("Error: only read-only statements are allowed (SELECT, WITH, EXPLAIN, SHOW)")
		}
		return t.runQuery(ctx, db, query)

	case "schema":
		return t.schema(ctx, db, strings.TrimSpace(strArg(args, "table_name")))

	case "explain_analyze":
		query := strings.TrimSpace(strArg(args, "query"))
		if query == "" {
			return fail("Error: 'query' parameter is required")
		}
		if !isReadOnlySQL(query) {
			return fail("Error: refusing to explain-analyze a mutating statement")
		}
		return t.runQuery(ctx, db, "EXPLAIN (ANALYZE, BUFFERS) "+query)

	case "activity":
		return t.runQuery(ctx, db,
			`SELECT pid, usename, state, query_start, left(query, 120) AS query
			 FROM pg_stat_activity WHERE state IS NOT NULL ORDER BY query_start`)

	default:
		return fail("Error: unknown action '%s'", strArg(args, "action"))
	}
}

func (t *PostgresAdminTool) connect(dsn string) (*gorm.DB, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if db, exists := t.conns[dsn]; exists {
		return db, nil
	}
	db, err := t.openDB(dsn)
	if err != nil {
		return nil, err
	}
	t.conns[dsn] = db
	t.logger.Info("Postgres connection opened", zap.String("dsn", redactDSN(dsn)))
	return db, nil
}

func (t *PostgresAdminTool) runQuery(ctx context.Context, db *gorm.DB, query string) (*domaintool.Result, error) {
	rows, err := db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return fail("Error: query failed: %v", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fail("Error: cannot read columns: %v", err)
	}

	var lines []string
	lines = append(lines, strings.Join(cols, " | "))
	count := 0
	for rows.Next() && count < pgRowCap {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fail("Error: row scan failed: %v", err)
		}
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = formatSQLValue(v)
		}
		lines = append(lines, strings.Join(cells, " | "))
		count++
	}
	if err := rows.Err(); err != nil {
		return fail("Error: row iteration failed: %v", err)
	}

	suffix := ""
	if count == pgRowCap {
		suffix = fmt.Sprintf("\n...[capped at %d rows]", pgRowCap)
	}
	return ok(fmt.Sprintf("%s\n(%d rows)%s", strings.Join(lines, "\n"), count, suffix))
}

func (t *PostgresAdminTool) schema(ctx context.Context, db *gorm.DB, table string) (*domaintool.Result, error) {
	if table != "" {
		return t.runQuery(ctx, db, fmt.Sprintf(
			`SELECT column_name, data_type, is_nullable, column_default
			 FROM information_schema.columns
			 WHERE table_name = '%s' ORDER BY ordinal_position`,
			strings.ReplaceAll(table, "'", "''")))
	}
	return t.runQuery(ctx, db,
		`SELECT table_schema, table_name, table_type
		 FROM information_schema.tables
		 WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		 ORDER BY table_schema, table_name`)
}

// isReadOnlySQL gates the statement by its first keyword. A semicolon
// followed by more text means a second statement; refuse those outright.
func isReadOnlySQL(query string) bool {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if strings.Contains(trimmed, ";") {
		return false
	}
	first := strings.ToUpper(trimmed)
	for _, prefix := range []string{"SELECT", "WITH", "EXPLAIN", "SHOW"} {
		if strings.HasPrefix(first, prefix) {
			return true
		}
	}
	return false
}

func formatSQLValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return truncate(string(val), pgValueCap)
	default:
		return truncate(fmt.Sprintf("%v", val), pgValueCap)
	}
}

// redactDSN strips credentials before a DSN reaches logs or the model.
func redactDSN(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at != -1 {
		if scheme := strings.Index(dsn, "://"); scheme != -1 {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	return dsn
}
