// Package config handles configuration loading, parsing, and validation
// from a dbtestkit.yaml file and DBTESTKIT_* environment variables. It
// describes the database to build, the directive file driving the build and
// the logging setup.
package config
