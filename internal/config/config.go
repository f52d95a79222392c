package config

import (
	"github.com/spf13/viper"
)

// Defaults
const (
	DefaultCommitEvery    = 1000
	DefaultDumpMaxWidth   = -1
	DefaultDumpMaxRows    = 1000
	DefaultCSVEncoding    = "utf-8"
	DefaultCSVDelimiter   = ","
	DefaultPostgresSchema = "public"
	DefaultDescribeFormat = "markdown"
)

// Global configuration variables
var (
	// CommitEvery is how many modifications run before an automatic commit
	CommitEvery int
	// DumpMaxWidth bounds the serialized values of one INSERT in dumps (-1 disables)
	DumpMaxWidth int
	// DumpMaxRows bounds the rows of one INSERT in dumps (-1 disables)
	DumpMaxRows int
	// CSVEncoding is the character set of ingested CSV files
	CSVEncoding string
	// CSVDelimiter separates CSV fields
	CSVDelimiter string
	// PostgresURL is the connection string used by transplant
	PostgresURL string
	// PostgresSchema is the schema transplanted tables are created in
	PostgresSchema string
	// DescribeFormat is the default output of describe
	DescribeFormat string
	// Extensions are SQLite extensions loaded into every connection
	Extensions []string
)

// InitConfig initializes the global configuration
func InitConfig() {
	viper.SetDefault("commit_every", DefaultCommitEvery)
	viper.SetDefault("dump.max_width", DefaultDumpMaxWidth)
	viper.SetDefault("dump.max_rows", DefaultDumpMaxRows)
	viper.SetDefault("csv.encoding", DefaultCSVEncoding)
	viper.SetDefault("csv.delimiter", DefaultCSVDelimiter)
	viper.SetDefault("postgres.schema", DefaultPostgresSchema)
	viper.SetDefault("describe.format", DefaultDescribeFormat)

	CommitEvery = viper.GetInt("commit_every")
	DumpMaxWidth = viper.GetInt("dump.max_width")
	DumpMaxRows = viper.GetInt("dump.max_rows")
	CSVEncoding = viper.GetString("csv.encoding")
	CSVDelimiter = viper.GetString("csv.delimiter")
	PostgresURL = viper.GetString("postgres.url")
	PostgresSchema = viper.GetString("postgres.schema")
	DescribeFormat = viper.GetString("describe.format")
	Extensions = viper.GetStringSlice("extensions")
}

// SetCommitEvery overrides CommitEvery, e.g. from a command line flag
func SetCommitEvery(n int) {
	CommitEvery = n
}

// SetExtensions overrides Extensions
func SetExtensions(paths []string) {
	Extensions = paths
}
