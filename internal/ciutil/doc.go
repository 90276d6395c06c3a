// Package ciutil detects the execution environment (CI or local), reads the
// environment variables dbtestkit understands with legacy fallbacks, and
// locates the project root that relative directive and config paths are
// resolved against.
package ciutil
