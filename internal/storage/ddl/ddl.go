// Package ddl infers SQL table definitions from in-memory tables and renders
// dialect-specific DROP/CREATE statements.
package ddl

import (
	"fmt"
	"strings"

	"gdqvods/internal/storage/sqlident"
	"gdqvods/internal/table"
)

// Type is a portable column type.
type Type int

const (
	Text Type = iota
	BigInt
	Double
	Boolean
)

// ColumnDef describes one column. Source is the table column the values come
// from; Name is its folded identifier.
type ColumnDef struct {
	Name   string
	Source string
	Type   Type
}

// TableDef is an inferred table definition.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// ColumnNames returns the folded column names in order.
func (d TableDef) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Infer derives a TableDef from t. A column whose non-nil values are all
// integers is BigInt; integers mixed with floats make Double; all booleans
// make Boolean; anything else, including an all-nil column, is Text.
func Infer(t *table.Table) TableDef {
	names := sqlident.FoldAll(t.Columns)
	def := TableDef{Name: sqlident.Fold(t.Name), Columns: make([]ColumnDef, len(t.Columns))}
	for i, c := range t.Columns {
		def.Columns[i] = ColumnDef{Name: names[i], Source: c, Type: inferColumn(t, c)}
	}
	return def
}

func inferColumn(t *table.Table, col string) Type {
	var ints, floats, bools, other int
	for _, r := range t.Rows {
		switch table.Scalar(r[col]).(type) {
		case nil:
		case int64:
			ints++
		case float64:
			floats++
		case bool:
			bools++
		default:
			other++
		}
	}
	switch {
	case other > 0:
		return Text
	case bools > 0 && ints+floats == 0:
		return Boolean
	case bools > 0:
		return Text
	case floats > 0:
		return Double
	case ints > 0:
		return BigInt
	default:
		return Text
	}
}

// Rows returns t's values converted to the column types of d.
func (d TableDef) Rows(t *table.Table) [][]any {
	out := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]any, len(d.Columns))
		for j, c := range d.Columns {
			row[j] = convert(table.Scalar(r[c.Source]), c.Type)
		}
		out[i] = row
	}
	return out
}

func convert(v any, typ Type) any {
	if v == nil {
		return nil
	}
	switch typ {
	case Double:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
		return v
	case BigInt, Boolean:
		return v
	default:
		return table.Format(v)
	}
}

// Dialect renders SQL for one database.
type Dialect struct {
	Name  string
	types map[Type]string
	quote func(string) string
	drop  string // format with the quoted table name
}

// Postgres targets PostgreSQL.
var Postgres = Dialect{
	Name:  "postgres",
	types: map[Type]string{Text: "TEXT", BigInt: "BIGINT", Double: "DOUBLE PRECISION", Boolean: "BOOLEAN"},
	quote: doubleQuote,
	drop:  "DROP TABLE IF EXISTS %s",
}

// SQLite targets SQLite.
var SQLite = Dialect{
	Name:  "sqlite",
	types: map[Type]string{Text: "TEXT", BigInt: "INTEGER", Double: "REAL", Boolean: "BOOLEAN"},
	quote: doubleQuote,
	drop:  "DROP TABLE IF EXISTS %s",
}

// MSSQL targets SQL Server 2016 or newer.
var MSSQL = Dialect{
	Name:  "mssql",
	types: map[Type]string{Text: "NVARCHAR(MAX)", BigInt: "BIGINT", Double: "FLOAT", Boolean: "BIT"},
	quote: bracketQuote,
	drop:  "DROP TABLE IF EXISTS %s",
}

// Quote quotes a possibly schema-qualified name, segment by segment.
func (d Dialect) Quote(name string) string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.quote(p))
	}
	return strings.Join(out, ".")
}

// SQLType returns the dialect's name for typ.
func (d Dialect) SQLType(typ Type) string { return d.types[typ] }

// DropTableSQL returns an idempotent DROP TABLE statement.
func (d Dialect) DropTableSQL(name string) string {
	return fmt.Sprintf(d.drop, d.Quote(name))
}

// CreateTableSQL renders CREATE TABLE for def. Every column is nullable.
func (d Dialect) CreateTableSQL(def TableDef) (string, error) {
	if strings.TrimSpace(def.Name) == "" {
		return "", fmt.Errorf("%s ddl: table name must not be empty", d.Name)
	}
	if len(def.Columns) == 0 {
		return "", fmt.Errorf("%s ddl: table %s has no columns", d.Name, def.Name)
	}
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = d.quote(c.Name) + " " + d.SQLType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.Quote(def.Name), strings.Join(cols, ",\n  ")), nil
}

func doubleQuote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func bracketQuote(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}
