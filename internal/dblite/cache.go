package dblite

// schemaCache memoizes introspection results for one DB. It is replaced
// wholesale whenever a statement may have changed the schema.
type schemaCache struct {
	tables  []string
	columns map[string][]string
	create  map[string]string
}

func newSchemaCache() *schemaCache {
	return &schemaCache{
		columns: make(map[string][]string),
		create:  make(map[string]string),
	}
}

// ClearCache drops all cached metadata.
func (db *DB) ClearCache() {
	db.cache = newSchemaCache()
}

// Tables returns the user tables ordered by name. SQLite internal tables
// (sqlite_*) are not included.
func (db *DB) Tables() ([]string, error) {
	if db.cache.tables != nil {
		return db.cache.tables, nil
	}
	tables, err := db.Strings("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite\\_%' ESCAPE '\\' ORDER BY name")
	if err != nil {
		return nil, err
	}
	if tables == nil {
		tables = []string{}
	}
	db.cache.tables = tables
	return tables, nil
}

// Columns returns the column names of table in declaration order.
func (db *DB) Columns(table string) ([]string, error) {
	if cols, ok := db.cache.columns[table]; ok {
		return cols, nil
	}
	cols, err := db.Strings("SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, err
	}
	db.cache.columns[table] = cols
	return cols, nil
}

// CreateStatement returns the CREATE TABLE statement stored for table.
func (db *DB) CreateStatement(table string) (string, error) {
	if sql, ok := db.cache.create[table]; ok {
		return sql, nil
	}
	v, err := db.Scalar("SELECT sql FROM sqlite_master WHERE type='table' AND name=?", table)
	if err != nil {
		return "", err
	}
	sql, _ := v.(string)
	db.cache.create[table] = sql
	return sql, nil
}
