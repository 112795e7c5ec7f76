/*
Package storage is the persistence gateway over the SQLite store.

Store wraps one open transaction at a time: callers batch writes and decide
when Commit draws the durability line, which keeps the enumeration pipeline's
periodic-commit cadence in one place. Inserts refresh server-assigned ids on
the passed records.

Large scans (second-pass targets, the edge export) never load whole tables;
they stream through windowed keyset pagination, each query carrying the last
seen key and ordering by it.
*/
package storage
