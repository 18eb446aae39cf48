package plan

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `<ShowPlanXML xmlns="http://schemas.microsoft.com/sqlserver/2004/07/showplan" Version="1.539">
  <BatchSequence>
    <Batch>
      <Statements>
        <StmtSimple StatementText="SELECT o.id FROM dbo.orders o WHERE o.customer_id = 42" StatementEstRows="120" StatementSubTreeCost="0.0657">
          <QueryPlan>
            <MissingIndexes>
              <MissingIndexGroup Impact="91.6">
                <MissingIndex Database="[shop]" Schema="[dbo]" Table="[orders]">
                  <ColumnGroup Usage="EQUALITY">
                    <Column Name="[customer_id]" ColumnId="3"/>
                  </ColumnGroup>
                  <ColumnGroup Usage="INCLUDE">
                    <Column Name="[id]" ColumnId="1"/>
                    <Column Name="[total]" ColumnId="5"/>
                  </ColumnGroup>
                </MissingIndex>
              </MissingIndexGroup>
            </MissingIndexes>
            <RelOp PhysicalOp="Nested Loops" LogicalOp="Inner Join" EstimateRows="120" EstimatedTotalSubtreeCost="0.0657" EstimateCPU="0.0005" EstimateIO="0">
              <NestedLoops>
                <RelOp PhysicalOp="Clustered Index Scan" LogicalOp="Clustered Index Scan" EstimateRows="100000" EstimatedTotalSubtreeCost="0.06" EstimateCPU="0.11" EstimateIO="0.05">
                  <IndexScan>
                    <Object Database="[shop]" Schema="[dbo]" Table="[orders]" Index="[PK_orders]"/>
                  </IndexScan>
                  <Warnings>
                    <ColumnsWithNoStatistics>
                      <ColumnReference Column="customer_id"/>
                    </ColumnsWithNoStatistics>
                  </Warnings>
                </RelOp>
              </NestedLoops>
            </RelOp>
          </QueryPlan>
        </StmtSimple>
      </Statements>
    </Batch>
  </BatchSequence>
</ShowPlanXML>`

func TestSummarizeStatementsAndOperators(t *testing.T) {
	out := Summarize(samplePlan)

	var summary Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))

	require.Len(t, summary.Statements, 1)
	stmt := summary.Statements[0]
	assert.Equal(t, "SELECT o.id FROM dbo.orders o WHERE o.customer_id = 42", stmt.Statement)
	assert.Equal(t, "120", stmt.EstimatedRows)
	assert.Equal(t, "0.0657", stmt.EstimatedCost)

	// Operators in document order: the join, then the nested scan.
	require.Len(t, stmt.Operators, 2)
	assert.Equal(t, "Nested Loops", stmt.Operators[0].Operation)
	assert.Equal(t, "Inner Join", stmt.Operators[0].LogicalOp)

	scan := stmt.Operators[1]
	assert.Equal(t, "Clustered Index Scan", scan.Operation)
	assert.Equal(t, "100000", scan.EstRows)
	assert.Equal(t, "dbo", scan.Schema)
	assert.Equal(t, "orders", scan.Table)
	assert.Equal(t, "PK_orders", scan.Index)
	assert.Equal(t, []string{"ColumnsWithNoStatistics"}, scan.Warnings)
}

func TestSummarizeMissingIndexes(t *testing.T) {
	out := Summarize(samplePlan)

	var summary Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))

	require.Len(t, summary.MissingIndexes, 1)
	mi := summary.MissingIndexes[0]
	assert.Equal(t, "dbo.orders", mi.Table)
	assert.Equal(t, "91.6", mi.Impact)
	assert.Equal(t, []string{"customer_id"}, mi.EqualityColumns)
	assert.Equal(t, []string{"id", "total"}, mi.IncludeColumns)

	// Absent column groups are omitted, not empty lists.
	assert.Nil(t, mi.InequalityColumns)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &raw))
	groups := raw["missing_indexes"].([]interface{})[0].(map[string]interface{})
	_, present := groups["inequality_columns"]
	assert.False(t, present)
}

func TestSummarizeTruncatesStatementText(t *testing.T) {
	long := strings.Repeat("SELECT 1 FROM really_long_table_name ", 20)
	doc := `<ShowPlanXML xmlns="http://schemas.microsoft.com/sqlserver/2004/07/showplan">` +
		`<BatchSequence><Batch><Statements>` +
		`<StmtSimple StatementText="` + long + `" StatementEstRows="1" StatementSubTreeCost="0.01"/>` +
		`</Statements></Batch></BatchSequence></ShowPlanXML>`

	var summary Summary
	require.NoError(t, json.Unmarshal([]byte(Summarize(doc)), &summary))
	require.Len(t, summary.Statements, 1)
	assert.Len(t, summary.Statements[0].Statement, 200)
}

func TestSummarizeUnparseableInput(t *testing.T) {
	raw := strings.Repeat("definitely not xml ", 500)
	out := Summarize(raw)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))

	require.Contains(t, payload, "raw_plan")
	assert.LessOrEqual(t, len(payload["raw_plan"]), 4000)

	// Degraded output carries only the raw key.
	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &generic))
	assert.NotContains(t, generic, "statements")
	assert.NotContains(t, generic, "missing_indexes")
}

func TestSummarizeWrongRoot(t *testing.T) {
	out := Summarize(`<html><body>not a plan</body></html>`)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Contains(t, payload, "raw_plan")
}

func TestSummarizeEmptyPlanHasStatementsKey(t *testing.T) {
	doc := `<ShowPlanXML xmlns="http://schemas.microsoft.com/sqlserver/2004/07/showplan"/>`

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(Summarize(doc)), &generic))
	assert.Contains(t, generic, "statements")
}
