// Package plan turns a SQL Server SHOWPLAN_XML document into a compact
// JSON summary suitable for feeding back into model context.
package plan

import (
	"encoding/json"
	"encoding/xml"
	"strings"
)

const showplanNS = "http://schemas.microsoft.com/sqlserver/2004/07/showplan"

const (
	// maxStatementText bounds the echoed statement text per statement.
	maxStatementText = 200

	// maxRawPlan bounds the degraded raw output on parse failure.
	maxRawPlan = 4000
)

// Summary is the bounded, queryable view of one execution plan.
type Summary struct {
	Statements     []Statement    `json:"statements"`
	MissingIndexes []MissingIndex `json:"missing_indexes,omitempty"`
}

type Statement struct {
	Statement     string     `json:"statement"`
	EstimatedRows string     `json:"estimated_rows"`
	EstimatedCost string     `json:"estimated_cost"`
	Operators     []Operator `json:"operators"`
}

type Operator struct {
	Operation string   `json:"operation"`
	LogicalOp string   `json:"logical_op"`
	EstRows   string   `json:"est_rows"`
	EstCost   string   `json:"est_cost"`
	EstCPU    string   `json:"est_cpu"`
	EstIO     string   `json:"est_io"`
	Schema    string   `json:"schema,omitempty"`
	Table     string   `json:"table,omitempty"`
	Index     string   `json:"index,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

type MissingIndex struct {
	Table             string   `json:"table"`
	Impact            string   `json:"impact"`
	EqualityColumns   []string `json:"equality_columns,omitempty"`
	InequalityColumns []string `json:"inequality_columns,omitempty"`
	IncludeColumns    []string `json:"include_columns,omitempty"`
}

// Summarize parses planXML and returns the summary as a JSON string. An
// unparseable or unrecognized document degrades to {"raw_plan": prefix}
// rather than failing: plan analysis feeds an LLM, so an unreadable plan
// must not abort the conversation.
func Summarize(planXML string) string {
	root, err := parseDocument(planXML)
	if err != nil || !isShowplanRoot(root) {
		raw := planXML
		if len(raw) > maxRawPlan {
			raw = raw[:maxRawPlan]
		}
		payload, _ := json.Marshal(map[string]string{"raw_plan": raw})
		return string(payload)
	}

	summary := summarizeTree(root)
	payload, _ := json.Marshal(summary)
	return string(payload)
}

func summarizeTree(root *node) Summary {
	summary := Summary{Statements: []Statement{}}

	for _, stmt := range root.findAll("StmtSimple") {
		text := strings.TrimSpace(stmt.attr("StatementText"))
		if len(text) > maxStatementText {
			text = text[:maxStatementText]
		}

		st := Statement{
			Statement:     text,
			EstimatedRows: stmt.attr("StatementEstRows"),
			EstimatedCost: stmt.attr("StatementSubTreeCost"),
			Operators:     []Operator{},
		}

		for _, relOp := range stmt.findAll("RelOp") {
			op := Operator{
				Operation: relOp.attr("PhysicalOp"),
				LogicalOp: relOp.attr("LogicalOp"),
				EstRows:   relOp.attr("EstimateRows"),
				EstCost:   relOp.attr("EstimatedTotalSubtreeCost"),
				EstCPU:    relOp.attr("EstimateCPU"),
				EstIO:     relOp.attr("EstimateIO"),
			}

			if obj := relOp.findFirst("Object"); obj != nil {
				op.Schema = stripBrackets(obj.attr("Schema"))
				op.Table = stripBrackets(obj.attr("Table"))
				op.Index = stripBrackets(obj.attr("Index"))
			}

			for _, warn := range relOp.findAll("Warnings") {
				for _, child := range warn.Children {
					op.Warnings = append(op.Warnings, child.XMLName.Local)
				}
			}

			st.Operators = append(st.Operators, op)
		}

		summary.Statements = append(summary.Statements, st)
	}

	for _, group := range root.findAll("MissingIndexGroup") {
		impact := group.attr("Impact")
		for _, mi := range group.findAll("MissingIndex") {
			schema := stripBrackets(mi.attr("Schema"))
			table := stripBrackets(mi.attr("Table"))

			summary.MissingIndexes = append(summary.MissingIndexes, MissingIndex{
				Table:             schema + "." + table,
				Impact:            impact,
				EqualityColumns:   mi.columnGroup("EQUALITY"),
				InequalityColumns: mi.columnGroup("INEQUALITY"),
				IncludeColumns:    mi.columnGroup("INCLUDE"),
			})
		}
	}

	return summary
}

// node is a generic XML element tree. Showplan operators nest RelOp
// elements under operator-specific wrappers, so a fixed struct mapping
// cannot express the descendant searches the summary needs.
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []node     `xml:",any"`
}

func parseDocument(raw string) (*node, error) {
	var root node
	if err := xml.Unmarshal([]byte(raw), &root); err != nil {
		return nil, err
	}
	return &root, nil
}

func isShowplanRoot(root *node) bool {
	return root.XMLName.Local == "ShowPlanXML" && root.XMLName.Space == showplanNS
}

func (n *node) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// findAll returns every descendant element with the given local name, in
// document order. The starting node itself is not included.
func (n *node) findAll(local string) []*node {
	var matches []*node
	for i := range n.Children {
		child := &n.Children[i]
		if child.XMLName.Local == local {
			matches = append(matches, child)
		}
		matches = append(matches, child.findAll(local)...)
	}
	return matches
}

func (n *node) findFirst(local string) *node {
	for i := range n.Children {
		child := &n.Children[i]
		if child.XMLName.Local == local {
			return child
		}
		if found := child.findFirst(local); found != nil {
			return found
		}
	}
	return nil
}

// columnGroup collects column names for a ColumnGroup with the given
// Usage. An absent or empty group yields nil, which marshals as an
// omitted key rather than an empty list.
func (n *node) columnGroup(usage string) []string {
	var cols []string
	for i := range n.Children {
		child := &n.Children[i]
		if child.XMLName.Local != "ColumnGroup" || child.attr("Usage") != usage {
			continue
		}
		for j := range child.Children {
			col := &child.Children[j]
			if col.XMLName.Local == "Column" {
				cols = append(cols, stripBrackets(col.attr("Name")))
			}
		}
	}
	return cols
}

func stripBrackets(s string) string {
	return strings.Trim(s, "[]")
}
