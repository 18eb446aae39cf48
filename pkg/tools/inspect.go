package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zatuliveter/ai-da-dba/pkg/mssql"
)

const defaultSchema = "dbo"

var schemaParam = ToolParameter{
	Name:        "schema",
	Type:        "string",
	Description: "Schema name (default: dbo)",
	Default:     defaultSchema,
}

var tableNameParam = ToolParameter{
	Name:        "table_name",
	Type:        "string",
	Description: "Table name",
	Required:    true,
}

type listTablesTool struct {
	connector *mssql.Connector
}

func (t *listTablesTool) Info() ToolInfo {
	return ToolInfo{
		Name:        OpListTables,
		Description: "List all tables and views in the selected database.",
	}
}

func (t *listTablesTool) Execute(ctx context.Context, args map[string]interface{}, database string) (string, error) {
	return t.connector.Query(ctx, database, `
		SELECT TABLE_SCHEMA, TABLE_NAME, TABLE_TYPE
		FROM INFORMATION_SCHEMA.TABLES
		ORDER BY TABLE_TYPE, TABLE_NAME`)
}

type tableStructureTool struct {
	connector *mssql.Connector
}

func (t *tableStructureTool) Info() ToolInfo {
	return ToolInfo{
		Name:        OpTableStructure,
		Description: "Get the column definitions of a table: column names, data types, nullability, defaults, and primary key info.",
		Parameters:  []ToolParameter{tableNameParam, schemaParam},
	}
}

func (t *tableStructureTool) Execute(ctx context.Context, args map[string]interface{}, database string) (string, error) {
	schema := stringArg(args, "schema", defaultSchema)
	tableName := stringArg(args, "table_name", "")

	return t.connector.Query(ctx, database, `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.CHARACTER_MAXIMUM_LENGTH,
			c.NUMERIC_PRECISION,
			c.NUMERIC_SCALE,
			c.IS_NULLABLE,
			c.COLUMN_DEFAULT,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 'YES' ELSE 'NO' END AS IS_PRIMARY_KEY
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT ku.TABLE_SCHEMA, ku.TABLE_NAME, ku.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ku
				ON tc.CONSTRAINT_NAME = ku.CONSTRAINT_NAME
				AND tc.TABLE_SCHEMA = ku.TABLE_SCHEMA
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		) pk ON c.TABLE_SCHEMA = pk.TABLE_SCHEMA
			AND c.TABLE_NAME = pk.TABLE_NAME
			AND c.COLUMN_NAME = pk.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION`,
		schema, tableName)
}

type tableStatsTool struct {
	connector *mssql.Connector
}

func (t *tableStatsTool) Info() ToolInfo {
	return ToolInfo{
		Name:        OpTableStats,
		Description: "Get table statistics: row count, reserved space (MB), used space (MB).",
		Parameters:  []ToolParameter{tableNameParam, schemaParam},
	}
}

func (t *tableStatsTool) Execute(ctx context.Context, args map[string]interface{}, database string) (string, error) {
	schema := stringArg(args, "schema", defaultSchema)
	tableName := stringArg(args, "table_name", "")

	return t.connector.Query(ctx, database, `
		SELECT
			s.name AS schema_name,
			t.name AS table_name,
			SUM(ps.row_count) AS row_count,
			SUM(ps.reserved_page_count) * 8 / 1024 AS reserved_mb,
			SUM(ps.used_page_count) * 8 / 1024 AS used_mb
		FROM sys.tables t
		JOIN sys.schemas s ON t.schema_id = s.schema_id
		JOIN sys.dm_db_partition_stats ps ON t.object_id = ps.object_id
		WHERE s.name = @p1 AND t.name = @p2 AND ps.index_id IN (0, 1)
		GROUP BY s.name, t.name`,
		schema, tableName)
}

type indexesTool struct {
	connector *mssql.Connector
}

func (t *indexesTool) Info() ToolInfo {
	return ToolInfo{
		Name:        OpIndexes,
		Description: "Get all indexes on a table: index name, type (clustered/nonclustered), uniqueness, key columns, and included columns.",
		Parameters:  []ToolParameter{tableNameParam, schemaParam},
	}
}

func (t *indexesTool) Execute(ctx context.Context, args map[string]interface{}, database string) (string, error) {
	schema := stringArg(args, "schema", defaultSchema)
	tableName := stringArg(args, "table_name", "")

	return t.connector.Query(ctx, database, `
		SELECT
			i.name AS index_name,
			i.type_desc AS index_type,
			i.is_unique,
			i.is_primary_key,
			STRING_AGG(
				CASE WHEN ic.is_included_column = 0 THEN c.name END, ', '
			) WITHIN GROUP (ORDER BY ic.key_ordinal) AS key_columns,
			STRING_AGG(
				CASE WHEN ic.is_included_column = 1 THEN c.name END, ', '
			) WITHIN GROUP (ORDER BY ic.key_ordinal) AS included_columns,
			i.filter_definition
		FROM sys.indexes i
		JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id
		JOIN sys.columns c ON ic.object_id = c.object_id AND ic.column_id = c.column_id
		JOIN sys.tables t ON i.object_id = t.object_id
		JOIN sys.schemas s ON t.schema_id = s.schema_id
		WHERE s.name = @p1 AND t.name = @p2
		  AND i.name IS NOT NULL
		GROUP BY i.name, i.type_desc, i.is_unique, i.is_primary_key, i.filter_definition
		ORDER BY i.is_primary_key DESC, i.name`,
		schema, tableName)
}

type foreignKeysTool struct {
	connector *mssql.Connector
}

func (t *foreignKeysTool) Info() ToolInfo {
	return ToolInfo{
		Name:        OpForeignKeys,
		Description: "Get all foreign key relationships for a table (both as parent and referenced table).",
		Parameters:  []ToolParameter{tableNameParam, schemaParam},
	}
}

func (t *foreignKeysTool) Execute(ctx context.Context, args map[string]interface{}, database string) (string, error) {
	schema := stringArg(args, "schema", defaultSchema)
	tableName := stringArg(args, "table_name", "")

	return t.connector.Query(ctx, database, `
		SELECT
			fk.name AS fk_name,
			tp.name AS parent_table,
			sp.name AS parent_schema,
			cp.name AS parent_column,
			tr.name AS referenced_table,
			sr.name AS referenced_schema,
			cr.name AS referenced_column,
			fk.delete_referential_action_desc AS on_delete,
			fk.update_referential_action_desc AS on_update
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
		JOIN sys.tables tp ON fkc.parent_object_id = tp.object_id
		JOIN sys.schemas sp ON tp.schema_id = sp.schema_id
		JOIN sys.columns cp ON fkc.parent_object_id = cp.object_id AND fkc.parent_column_id = cp.column_id
		JOIN sys.tables tr ON fkc.referenced_object_id = tr.object_id
		JOIN sys.schemas sr ON tr.schema_id = sr.schema_id
		JOIN sys.columns cr ON fkc.referenced_object_id = cr.object_id AND fkc.referenced_column_id = cr.column_id
		WHERE (sp.name = @p1 AND tp.name = @p2)
		   OR (sr.name = @p3 AND tr.name = @p4)
		ORDER BY fk.name`,
		schema, tableName, schema, tableName)
}

type missingIndexesTool struct {
	connector *mssql.Connector
}

func (t *missingIndexesTool) Info() ToolInfo {
	return ToolInfo{
		Name:        OpMissingIndexes,
		Description: "Get missing index recommendations from SQL Server DMVs. Can filter by a specific table or return all missing indexes for the database.",
		Parameters: []ToolParameter{
			{Name: "table_name", Type: "string", Description: "Optional: filter by table name"},
			schemaParam,
		},
	}
}

func (t *missingIndexesTool) Execute(ctx context.Context, args map[string]interface{}, database string) (string, error) {
	schema := stringArg(args, "schema", defaultSchema)
	tableName := stringArg(args, "table_name", "")

	query := `
		SELECT
			s.name AS schema_name,
			OBJECT_NAME(mid.object_id) AS table_name,
			mid.equality_columns,
			mid.inequality_columns,
			mid.included_columns,
			migs.avg_user_impact,
			migs.user_seeks,
			migs.user_scans,
			migs.last_user_seek
		FROM sys.dm_db_missing_index_details mid
		JOIN sys.dm_db_missing_index_groups mig ON mid.index_handle = mig.index_handle
		JOIN sys.dm_db_missing_index_group_stats migs ON mig.index_group_handle = migs.group_handle
		JOIN sys.schemas s ON mid.object_id = OBJECT_ID(QUOTENAME(s.name) + '.' + QUOTENAME(OBJECT_NAME(mid.object_id)))
		WHERE mid.database_id = DB_ID()`

	var params []interface{}
	if tableName != "" {
		query += " AND OBJECT_NAME(mid.object_id) = @p1 AND s.name = @p2"
		params = append(params, tableName, schema)
	}
	query += " ORDER BY migs.avg_user_impact * (migs.user_seeks + migs.user_scans) DESC"

	return t.connector.Query(ctx, database, query, params...)
}

type dbConfigTool struct {
	connector *mssql.Connector
}

func (t *dbConfigTool) Info() ToolInfo {
	return ToolInfo{
		Name:        OpDBConfig,
		Description: "Get database-level configuration: compatibility level, recovery model, collation, snapshot isolation, auto statistics settings, and scoped configuration options.",
	}
}

func (t *dbConfigTool) Execute(ctx context.Context, args map[string]interface{}, database string) (string, error) {
	return t.connector.Query(ctx, database, `
		SELECT
			d.name AS database_name,
			d.compatibility_level,
			d.collation_name,
			d.recovery_model_desc,
			d.snapshot_isolation_state_desc,
			d.is_read_committed_snapshot_on,
			d.is_auto_create_stats_on,
			d.is_auto_update_stats_on,
			d.page_verify_option_desc,
			(SELECT STRING_AGG(CONCAT(dsc.name, '=', CONVERT(NVARCHAR(100), dsc.value)), '; ')
			 FROM sys.database_scoped_configurations dsc) AS scoped_configurations
		FROM sys.databases d
		WHERE d.name = DB_NAME()`)
}

type currentTimeTool struct{}

func (t *currentTimeTool) Info() ToolInfo {
	return ToolInfo{
		Name:        OpCurrentUTCTime,
		Description: "Get the current UTC time.",
	}
}

func (t *currentTimeTool) Execute(ctx context.Context, args map[string]interface{}, database string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"utc_time": time.Now().UTC().Format(time.RFC3339),
	})
	return string(payload), err
}
