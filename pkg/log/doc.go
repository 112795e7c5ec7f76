/*
Package log provides structured logging for grackle using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Usage

Initialize once at startup, then derive child loggers per component:

	log.Init(log.Config{Level: log.InfoLevel})
	logger := log.WithComponent("manager")
	logger.Info().Int64("ad_id", adID).Msg("enumeration started")

Child-logger helpers exist for the identifiers that recur across the
enumeration pipeline: component, ad_id, graph_id and domain name.
*/
package log
