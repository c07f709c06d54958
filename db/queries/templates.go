package queries

import "text/template"

// Templates holds the structural SQL statements the comparator engine
// renders. Each is parsed once at package init.
type Templates struct {
	CreateLevelZero  *template.Template
	CreateSummary    *template.Template
	SelectLevel      *template.Template
	SelectLevelZero  *template.Template
	SelectBulkChunks *template.Template
	DropTable        *template.Template
	CountRows        *template.Template
}

// LevelZeroData parameterizes the level-0 checksum table's
// CREATE TABLE ... AS SELECT statement.
type LevelZeroData struct {
	Temporary   string
	TableName   string
	KeyLen      int
	UintType    string
	IDExpr      string
	IDCExpr     string
	CksExpr     string
	SourceTable string
	Where       string
}

// SummaryData parameterizes one level-k summary table's
// CREATE TABLE ... AS SELECT statement.
type SummaryData struct {
	Temporary    string
	TableName    string
	UintType     string
	Mask         uint32
	AggregateCks string
	SourceTable  string
}

// SelectLevelData parameterizes the walker's per-level ordered select,
// used at levels above the leaf (idc, cks only).
type SelectLevelData struct {
	TableName   string
	ParentMask  uint32
	Investigate []uint32
	HasFilter   bool
}

// SelectLevelZeroData is SelectLevelData plus the id column, used at the
// leaf level.
type SelectLevelZeroData struct {
	TableName   string
	ParentMask  uint32
	Investigate []uint32
	HasFilter   bool
}

// BulkChunksData parameterizes the bulk-chunk resolver's select: a
// disjunction of (idc & mask) = target predicates over the level-0
// table.
type BulkChunksData struct {
	TableName string
	Chunks    []BulkChunkPredicate
}

// BulkChunkPredicate is one (idc & mask) = idc clause.
type BulkChunkPredicate struct {
	Mask uint32
	IDC  uint32
}

// SQLTemplates is the package-wide parsed template set.
var SQLTemplates = Templates{
	CreateLevelZero: template.Must(template.New("createLevelZero").Parse(
		`CREATE {{if .Temporary}}{{.Temporary}} {{end}}TABLE {{.TableName}} (` +
			`id VARCHAR({{.KeyLen}}) NOT NULL, ` +
			`idc {{.UintType}} NOT NULL, ` +
			`cks {{.UintType}} NOT NULL` +
			`) AS SELECT {{.IDExpr}} AS id, {{.IDCExpr}} AS idc, {{.CksExpr}} AS cks ` +
			`FROM {{.SourceTable}}` +
			`{{if .Where}} WHERE {{.Where}}{{end}}`,
	)),

	CreateSummary: template.Must(template.New("createSummary").Parse(
		`CREATE {{if .Temporary}}{{.Temporary}} {{end}}TABLE {{.TableName}} (` +
			`idc {{.UintType}} NOT NULL, ` +
			`cks {{.UintType}} NOT NULL` +
			`) AS SELECT idc & {{.Mask}} AS idc, {{.AggregateCks}} AS cks ` +
			`FROM {{.SourceTable}} GROUP BY idc & {{.Mask}}`,
	)),

	SelectLevel: template.Must(template.New("selectLevel").Parse(
		`SELECT idc, cks FROM {{.TableName}}` +
			`{{if .HasFilter}} WHERE idc & {{.ParentMask}} IN ({{range $i, $v := .Investigate}}{{if $i}},{{end}}{{$v}}{{end}})` +
			`{{end}} ORDER BY idc, cks`,
	)),

	SelectLevelZero: template.Must(template.New("selectLevelZero").Parse(
		`SELECT idc, cks, id FROM {{.TableName}}` +
			`{{if .HasFilter}} WHERE idc & {{.ParentMask}} IN ({{range $i, $v := .Investigate}}{{if $i}},{{end}}{{$v}}{{end}})` +
			`{{end}} ORDER BY idc, cks`,
	)),

	SelectBulkChunks: template.Must(template.New("selectBulkChunks").Parse(
		`SELECT id FROM {{.TableName}} WHERE ` +
			`{{range $i, $c := .Chunks}}{{if $i}} OR {{end}}(idc & {{$c.Mask}}) = {{$c.IDC}}{{end}} ` +
			`ORDER BY id`,
	)),

	DropTable: template.Must(template.New("dropTable").Parse(
		`DROP TABLE IF EXISTS {{.}}`,
	)),

	CountRows: template.Must(template.New("countRows").Parse(
		`SELECT COUNT(*) FROM {{.}}`,
	)),
}
