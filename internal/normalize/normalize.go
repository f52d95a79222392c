// Package normalize rewrites SQLite tables into a consistent naming and
// typing convention: ASCII lowercase identifiers and column types tightened
// to what the stored data actually holds.
package normalize

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
)

// TmpPrefix names the table a rebuild copies into before renaming it.
const TmpPrefix = "TMP_"

const maxPasses = 8

// Column describes a column as found and as it will be rebuilt.
type Column struct {
	Original string
	Name     string
	Declared string
	Type     string
	// NotNull is true when the rebuilt column gets a NOT NULL constraint.
	NotNull         bool
	declaredNotNull bool
	defaultValue    *string
	pk              int64
}

// Changed reports whether the column needs a rebuild.
func (c Column) Changed() bool {
	return c.Name != c.Original ||
		!strings.EqualFold(c.Type, c.Declared) ||
		c.NotNull != c.declaredNotNull
}

func (c Column) definition() string {
	def := dblite.QuoteIdent(c.Name)
	if c.Type != "" {
		def += " " + c.Type
	}
	if c.NotNull {
		def += " NOT NULL"
	}
	if c.defaultValue != nil {
		def += " DEFAULT " + *c.defaultValue
	}
	return def
}

// Plan is the normalization of one table.
type Plan struct {
	Table   string
	Name    string
	Columns []Column
}

// NeedsRebuild reports whether the table or any of its columns changes.
func (p Plan) NeedsRebuild() bool {
	if p.Name != p.Table {
		return true
	}
	for _, c := range p.Columns {
		if c.Changed() {
			return true
		}
	}
	return false
}

// CreateStatement returns the CREATE TABLE of the temporary rebuild table.
func (p Plan) CreateStatement() string {
	defs := make([]string, 0, len(p.Columns)+1)
	var pk []Column
	for _, c := range p.Columns {
		defs = append(defs, c.definition())
		if c.pk > 0 {
			pk = append(pk, c)
		}
	}
	if len(pk) > 0 {
		names := make([]string, len(pk))
		for _, c := range pk {
			names[c.pk-1] = dblite.QuoteIdent(c.Name)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(names, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", dblite.QuoteIdent(TmpPrefix+p.Name), strings.Join(defs, ", "))
}

// Statements returns the rebuild sequence: create, copy, drop and rename.
func (p Plan) Statements() []string {
	tmp := dblite.QuoteIdent(TmpPrefix + p.Name)
	oldCols := make([]string, len(p.Columns))
	newCols := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		oldCols[i] = dblite.QuoteIdent(c.Original)
		newCols[i] = dblite.QuoteIdent(c.Name)
	}
	return []string{
		p.CreateStatement(),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tmp, strings.Join(newCols, ", "), strings.Join(oldCols, ", "), dblite.QuoteIdent(p.Table)),
		"DROP TABLE " + dblite.QuoteIdent(p.Table),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, dblite.QuoteIdent(p.Name)),
	}
}

// Normalizer runs normalization passes over one database.
type Normalizer struct {
	db *dblite.DB
}

// New prepares db for normalization by registering can_be_int.
func New(db *dblite.DB) (*Normalizer, error) {
	if db.ReadOnly() {
		return nil, fmt.Errorf("cannot normalize read-only database %s", db.Path())
	}
	err := db.RegisterFunction("can_be_int", 1, func(args ...any) (any, error) {
		return CanBeInt(args[0]), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register can_be_int: %w", err)
	}
	return &Normalizer{db: db}, nil
}

// Normalize runs passes until one rebuilds nothing and returns the final
// names of the rebuilt tables. When anything changed the database is
// vacuumed, foreign keys are enabled and integrity checks are logged.
func Normalize(db *dblite.DB) ([]string, error) {
	n, err := New(db)
	if err != nil {
		return nil, err
	}
	return n.Run()
}

// Run iterates Pass to a fixpoint.
func (n *Normalizer) Run() ([]string, error) {
	var rebuilt []string
	for pass := 1; ; pass++ {
		if pass > maxPasses {
			return rebuilt, fmt.Errorf("normalization of %s did not settle after %d passes", n.db.Path(), maxPasses)
		}
		changed, err := n.Pass()
		if err != nil {
			return rebuilt, err
		}
		slog.Debug("normalize pass", "pass", pass, "rebuilt", len(changed))
		if len(changed) == 0 {
			break
		}
		rebuilt = append(rebuilt, changed...)
	}

	if len(rebuilt) == 0 {
		return nil, nil
	}
	for _, stmt := range []string{"VACUUM", "PRAGMA foreign_keys=ON"} {
		if err := n.db.Execute(stmt); err != nil {
			return rebuilt, err
		}
	}
	n.db.Validate()
	return rebuilt, nil
}

// Pass normalizes every table once and returns the tables it rebuilt.
func (n *Normalizer) Pass() ([]string, error) {
	tables, err := n.tables()
	if err != nil {
		return nil, err
	}
	var rebuilt []string
	for _, table := range tables {
		if strings.HasPrefix(table, TmpPrefix) {
			slog.Warn("skipping leftover rebuild table, finish or drop it by hand", "table", table)
			continue
		}
		plan, err := n.Plan(table)
		if err != nil {
			return rebuilt, err
		}
		if !plan.NeedsRebuild() {
			continue
		}
		if err := n.rebuild(plan); err != nil {
			return rebuilt, err
		}
		rebuilt = append(rebuilt, plan.Name)
	}
	return rebuilt, nil
}

// tables lists ordinary tables; virtual tables and their shadow tables are
// left alone.
func (n *Normalizer) tables() ([]string, error) {
	return n.db.Strings(`SELECT name FROM pragma_table_list
		WHERE schema='main' AND type='table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name`)
}

// Plan scans table and decides its normalized name and column types. Text
// columns are trimmed and their empty strings set to NULL as a side effect.
func (n *Normalizer) Plan(table string) (Plan, error) {
	plan := Plan{Table: table, Name: TableName(table)}
	if err := n.checkTableName(table, plan.Name); err != nil {
		return plan, err
	}

	rows, err := n.db.All(`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return plan, err
	}
	for _, r := range rows {
		c := Column{}
		c.Original, _ = dblite.ToString(r[0])
		c.Declared, _ = dblite.ToString(r[1])
		notNull, _ := dblite.ToInt64(r[2])
		c.declaredNotNull = notNull != 0
		if dflt, ok := dblite.ToString(r[3]); ok {
			c.defaultValue = &dflt
		}
		c.pk, _ = dblite.ToInt64(r[4])
		c.Name = ColumnName(c.Original)
		plan.Columns = append(plan.Columns, c)
	}

	seen := make(map[string]string, len(plan.Columns))
	for _, c := range plan.Columns {
		key := strings.ToLower(c.Name)
		if other, ok := seen[key]; ok {
			return plan, dberrors.NewInvalidConfigurationErrorf(
				"columns %q and %q of table %q both normalize to %s", other, c.Original, table, c.Name)
		}
		seen[key] = c.Original
	}

	for i := range plan.Columns {
		if err := n.tighten(table, &plan.Columns[i]); err != nil {
			return plan, err
		}
	}
	return plan, nil
}

// checkTableName fails when name, the normalized name of table, is already
// taken by another table or is what another table normalizes to.
func (n *Normalizer) checkTableName(table, name string) error {
	tables, err := n.tables()
	if err != nil {
		return err
	}
	for _, other := range tables {
		if other == table || strings.HasPrefix(other, TmpPrefix) {
			continue
		}
		if strings.EqualFold(TableName(other), name) || (name != table && strings.EqualFold(other, name)) {
			return dberrors.NewInvalidConfigurationErrorf("tables %q and %q both normalize to %s", table, other, name)
		}
	}
	return nil
}

func (n *Normalizer) tighten(table string, c *Column) error {
	t := dblite.QuoteIdent(table)
	col := dblite.QuoteIdent(c.Original)
	textual := dblite.Affinity(c.Declared) == dblite.AffinityText

	if textual {
		for _, stmt := range []string{
			fmt.Sprintf("UPDATE %s SET %s = TRIM(%s) WHERE %s IS NOT NULL AND %s != TRIM(%s)", t, col, col, col, col, col),
			fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = ''", t, col, col),
		} {
			if err := n.db.Execute(stmt); err != nil {
				return err
			}
		}
	}

	counts, err := n.db.All(fmt.Sprintf("SELECT count(*), count(%s) FROM %s", col, t))
	if err != nil {
		return err
	}
	total, _ := dblite.ToInt64(counts[0][0])
	present, _ := dblite.ToInt64(counts[0][1])

	c.Type = c.Declared
	c.NotNull = c.declaredNotNull || (total > 0 && present == total)
	if present == 0 {
		return nil
	}

	notInt, err := n.db.Int(fmt.Sprintf("SELECT count(*) FROM %s WHERE NOT can_be_int(%s)", t, col))
	if err != nil {
		return err
	}
	switch {
	case notInt == 0:
		c.Type = "INTEGER"
	case textual:
		lengths, err := n.db.All(fmt.Sprintf(
			"SELECT min(length(CAST(%s AS BLOB))), max(length(CAST(%s AS BLOB))) FROM %s WHERE %s IS NOT NULL",
			col, col, t, col))
		if err != nil {
			return err
		}
		minLen, _ := dblite.ToInt64(lengths[0][0])
		maxLen, _ := dblite.ToInt64(lengths[0][1])
		if minLen == maxLen {
			c.Type = fmt.Sprintf("CHAR(%d)", maxLen)
		} else {
			c.Type = fmt.Sprintf("VARCHAR(%d)", maxLen)
		}
	}
	return nil
}

func (n *Normalizer) rebuild(plan Plan) error {
	slog.Info("rebuilding table", "table", plan.Table, "name", plan.Name)
	for _, stmt := range plan.Statements() {
		if err := n.db.Execute(stmt); err != nil {
			return fmt.Errorf("failed to rebuild %s: %w", plan.Table, err)
		}
	}
	return nil
}

// CanBeInt reports whether v can be stored as an INTEGER without losing
// information: NULL, integers, reals without a fractional part and strings
// of ASCII digits. Digit strings with a leading zero ("007") stay textual.
func CanBeInt(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case int64:
		return true
	case float64:
		return !math.IsInf(x, 0) && x == math.Trunc(x) &&
			x >= math.MinInt64 && x < math.MaxInt64
	case string:
		return isIntegralText(x)
	default:
		return false
	}
}

func isIntegralText(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
