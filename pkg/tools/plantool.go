package tools

import (
	"context"

	"github.com/zatuliveter/ai-da-dba/pkg/mssql"
	"github.com/zatuliveter/ai-da-dba/pkg/plan"
)

type executionPlanTool struct {
	connector *mssql.Connector
}

func (t *executionPlanTool) Info() ToolInfo {
	return ToolInfo{
		Name:        OpExecutionPlan,
		Description: "Get the estimated execution plan for a SQL query. Returns operators, costs, row estimates, and missing index hints. Use this to analyze query performance.",
		Parameters: []ToolParameter{
			{Name: "query", Type: "string", Description: "The SQL query to analyze", Required: true},
		},
	}
}

func (t *executionPlanTool) Execute(ctx context.Context, args map[string]interface{}, database string) (string, error) {
	query := stringArg(args, "query", "")

	planXML, err := t.connector.ExecutionPlanXML(ctx, database, query)
	if err != nil {
		return "", err
	}
	return plan.Summarize(planXML), nil
}
