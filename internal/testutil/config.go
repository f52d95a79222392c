package testutil

import (
	"testing"

	"github.com/lepinkainen/dbtools/internal/config"
	"github.com/spf13/viper"
)

// ConfigState holds the state of the config package variables.
type ConfigState struct {
	CommitEvery    int
	DumpMaxWidth   int
	DumpMaxRows    int
	CSVEncoding    string
	CSVDelimiter   string
	PostgresURL    string
	PostgresSchema string
	DescribeFormat string
	Extensions     []string
}

// SaveConfigState captures the current state of config package variables.
func SaveConfigState() ConfigState {
	return ConfigState{
		CommitEvery:    config.CommitEvery,
		DumpMaxWidth:   config.DumpMaxWidth,
		DumpMaxRows:    config.DumpMaxRows,
		CSVEncoding:    config.CSVEncoding,
		CSVDelimiter:   config.CSVDelimiter,
		PostgresURL:    config.PostgresURL,
		PostgresSchema: config.PostgresSchema,
		DescribeFormat: config.DescribeFormat,
		Extensions:     config.Extensions,
	}
}

// RestoreConfigState restores the config package variables to a saved state.
func RestoreConfigState(state ConfigState) {
	config.CommitEvery = state.CommitEvery
	config.DumpMaxWidth = state.DumpMaxWidth
	config.DumpMaxRows = state.DumpMaxRows
	config.CSVEncoding = state.CSVEncoding
	config.CSVDelimiter = state.CSVDelimiter
	config.PostgresURL = state.PostgresURL
	config.PostgresSchema = state.PostgresSchema
	config.DescribeFormat = state.DescribeFormat
	config.Extensions = state.Extensions
}

// SetTestConfig resets viper, loads the defaults into the config package and
// restores the previous state when the test completes.
func SetTestConfig(t *testing.T) {
	t.Helper()

	state := SaveConfigState()
	viper.Reset()
	config.InitConfig()

	t.Cleanup(func() {
		RestoreConfigState(state)
		viper.Reset()
	})
}

// SetViperValue sets a viper configuration value and reloads the config
// package. The previous value is put back when the test completes.
func SetViperValue(t *testing.T, key string, value any) {
	t.Helper()

	oldValue := viper.Get(key)
	hadValue := viper.IsSet(key)

	viper.Set(key, value)
	config.InitConfig()

	t.Cleanup(func() {
		if hadValue {
			viper.Set(key, oldValue)
		}
		// viper has no Unset; the key keeps value until the next Reset
		config.InitConfig()
	})
}
