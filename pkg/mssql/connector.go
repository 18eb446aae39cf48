package mssql

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "github.com/microsoft/go-mssqldb"
)

const (
	// MaxRows caps any single result set fed back into model context.
	MaxRows = 1000

	// QueryTimeout bounds every individual database call.
	QueryTimeout = 30 * time.Second
)

// Connector opens one connection per call against a SQL Server instance.
// It holds no pooled state, so independent sessions can use the same
// Connector concurrently.
type Connector struct {
	server   string
	user     string
	password string
	log      *slog.Logger
}

func NewConnector(server, user, password string, log *slog.Logger) *Connector {
	return &Connector{
		server:   server,
		user:     user,
		password: password,
		log:      log.With("component", "mssql"),
	}
}

func (c *Connector) open(database string) (*sql.DB, error) {
	u := &url.URL{
		Scheme: "sqlserver",
		Host:   c.server,
	}
	if c.user != "" {
		u.User = url.UserPassword(c.user, c.password)
	}

	q := url.Values{}
	q.Set("TrustServerCertificate", "true")
	if database != "" {
		q.Set("database", database)
	}
	u.RawQuery = q.Encode()

	db, err := sql.Open("sqlserver", u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	return db, nil
}

// ListDatabases returns the names of online user databases.
func (c *Connector) ListDatabases(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	db, err := c.open("")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sys.databases "+
			"WHERE state_desc = 'ONLINE' "+
			"AND name NOT IN ('master', 'tempdb', 'model', 'msdb') "+
			"ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Query executes sql against the given database and serializes the result
// set to JSON, capped at MaxRows rows.
func (c *Connector) Query(ctx context.Context, database, query string, args ...interface{}) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	db, err := c.open(database)
	if err != nil {
		return "", err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return rowsToJSON(rows, MaxRows)
}

// ExecutionPlanXML captures the estimated SHOWPLAN_XML document for query
// without executing it. Both SET statements must run on the same physical
// connection as the query itself.
func (c *Connector) ExecutionPlanXML(ctx context.Context, database, query string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	db, err := c.open(database)
	if err != nil {
		return "", err
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET SHOWPLAN_XML ON"); err != nil {
		return "", fmt.Errorf("failed to enable showplan: %w", err)
	}

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to obtain plan: %w", err)
	}

	var planXML string
	if rows.Next() {
		if err := rows.Scan(&planXML); err != nil {
			rows.Close()
			return "", err
		}
	}
	rows.Close()

	if _, err := conn.ExecContext(ctx, "SET SHOWPLAN_XML OFF"); err != nil {
		c.log.Warn("failed to disable showplan", "error", err)
	}

	if planXML == "" {
		return "", fmt.Errorf("no execution plan returned")
	}
	return planXML, nil
}

// rowsToJSON renders up to maxRows rows as a JSON array of objects. When
// the cap is hit the payload switches to an envelope carrying a truncation
// note, so the model knows it is looking at a prefix.
func rowsToJSON(rows *sql.Rows, maxRows int) (string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}

	records := make([]map[string]interface{}, 0, 16)
	truncated := false

	for rows.Next() {
		if len(records) >= maxRows {
			truncated = true
			break
		}

		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}

		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			record[col] = normalizeValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	if truncated {
		payload, err := json.Marshal(map[string]interface{}{
			"rows":      records,
			"truncated": true,
			"note":      fmt.Sprintf("Showing first %d rows", maxRows),
		})
		return string(payload), err
	}

	payload, err := json.Marshal(records)
	return string(payload), err
}

// normalizeValue converts driver values into JSON-friendly forms.
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return hex.EncodeToString(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
