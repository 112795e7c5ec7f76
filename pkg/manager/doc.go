/*
Package manager drives an enumeration run end to end.

Phase 1 walks the breadth categories (adinfo, trusts, users, machines,
groups, ous, gpos, spns) through a worker pool, persisting every result as
it arrives. adinfo runs alone first because it assigns the run's ad_id.
Phase 2 fans out per-object SD and membership jobs for whatever the store
does not cover yet, spilling results to disk and bulk-loading them at the
end. Resuming an earlier run skips Phase 1 and fills only the gaps.
*/
package manager
