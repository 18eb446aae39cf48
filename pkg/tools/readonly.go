package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/zatuliveter/ai-da-dba/pkg/mssql"
)

var (
	lineCommentPattern  = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	wordPattern         = regexp.MustCompile(`\b[A-Z]+\b`)
)

// forbiddenKeywords lists tokens that mutate data or schema. The gate is a
// conservative syntactic scan, not a SQL parser: any whole-word match
// rejects the statement before it reaches the server.
var forbiddenKeywords = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"DROP":     true,
	"ALTER":    true,
	"CREATE":   true,
	"TRUNCATE": true,
	"EXEC":     true,
	"EXECUTE":  true,
	"MERGE":    true,
	"GRANT":    true,
	"REVOKE":   true,
}

// CheckReadOnly validates that query is a plain read. Comments are
// stripped first so a denylisted keyword cannot hide inside one, and the
// statement must open with SELECT or WITH.
func CheckReadOnly(query string) error {
	normalized := lineCommentPattern.ReplaceAllString(query, "")
	normalized = blockCommentPattern.ReplaceAllString(normalized, "")
	normalized = strings.ToUpper(strings.TrimSpace(normalized))

	if !strings.HasPrefix(normalized, "SELECT") && !strings.HasPrefix(normalized, "WITH") {
		return fmt.Errorf("Only SELECT queries are allowed")
	}

	for _, token := range wordPattern.FindAllString(normalized, -1) {
		if forbiddenKeywords[token] {
			return fmt.Errorf("Forbidden keyword: %s", token)
		}
	}
	return nil
}

type readQueryTool struct {
	connector *mssql.Connector
}

func (t *readQueryTool) Info() ToolInfo {
	return ToolInfo{
		Name:        OpExecuteReadQuery,
		Description: "Execute a read-only SELECT query against the database. Returns up to 1000 rows. Only SELECT/WITH statements are allowed.",
		Parameters: []ToolParameter{
			{Name: "query", Type: "string", Description: "The SELECT query to execute", Required: true},
		},
	}
}

func (t *readQueryTool) Execute(ctx context.Context, args map[string]interface{}, database string) (string, error) {
	query := stringArg(args, "query", "")
	if err := CheckReadOnly(query); err != nil {
		return "", err
	}
	return t.connector.Query(ctx, database, query)
}
