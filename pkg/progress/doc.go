// Package progress reports enumeration liveness, either as a compact
// terminal display or as JSON messages on a remote Redis queue. Observers
// throttle internally; the pipeline reports every stored object.
package progress
