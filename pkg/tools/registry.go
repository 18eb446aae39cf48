package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/zatuliveter/ai-da-dba/pkg/llms"
	"github.com/zatuliveter/ai-da-dba/pkg/mssql"
)

// Operation names form a closed set; the registry is the single table
// mapping them to implementations.
const (
	OpListTables        = "list_tables"
	OpTableStructure    = "get_table_structure"
	OpTableStats        = "get_table_stats"
	OpIndexes           = "get_indexes"
	OpForeignKeys       = "get_foreign_keys"
	OpMissingIndexes    = "get_missing_indexes"
	OpDBConfig          = "get_db_config"
	OpCurrentUTCTime    = "get_current_utc_time"
	OpExecutionPlan     = "get_execution_plan"
	OpExecuteReadQuery  = "execute_read_query"
)

// Registry holds the fixed catalog of inspection operations and routes
// invocations. Dispatch never fails: every error, unknown name, or panic
// inside a tool becomes a structured error payload.
type Registry struct {
	tools map[string]Tool
	order []string
	log   *slog.Logger
}

// NewRegistry builds the full catalog over the given connector.
func NewRegistry(connector *mssql.Connector, log *slog.Logger) *Registry {
	r := &Registry{
		tools: make(map[string]Tool),
		log:   log.With("component", "tools"),
	}

	for _, t := range []Tool{
		&listTablesTool{connector},
		&tableStructureTool{connector},
		&tableStatsTool{connector},
		&indexesTool{connector},
		&foreignKeysTool{connector},
		&missingIndexesTool{connector},
		&dbConfigTool{connector},
		&currentTimeTool{},
		&executionPlanTool{connector},
		&readQueryTool{connector},
	} {
		name := t.Info().Name
		r.tools[name] = t
		r.order = append(r.order, name)
	}

	return r
}

// Definitions returns the tool catalog in the shape the model backend
// expects, in registration order.
func (r *Registry) Definitions() []llms.ToolDefinition {
	defs := make([]llms.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Info().Definition())
	}
	return defs
}

// Dispatch routes one invocation to its operation. The returned string is
// always a JSON payload the model can read, never an exception.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]interface{}, database string) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("tool panicked", "tool", name, "panic", rec)
			result = errorPayload(fmt.Sprintf("tool %s failed: %v", name, rec))
		}
	}()

	tool, ok := r.tools[name]
	if !ok {
		return errorPayload(fmt.Sprintf("Unknown tool: %s", name))
	}

	out, err := tool.Execute(ctx, args, database)
	if err != nil {
		r.log.Warn("tool failed", "tool", name, "error", err)
		return errorPayload(err.Error())
	}
	return out
}

func errorPayload(msg string) string {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return string(payload)
}
