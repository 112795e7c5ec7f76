/*
Package worker implements the enumeration worker: one directory session,
one job loop. Jobs arrive on a channel shared by the pool, results leave as
typed messages on a bounded output channel.

Every category stream ends with its *_FINISHED sentinel, the only signal
the manager uses to advance phases. Errors are converted into EXCEPTION
messages carrying a stack trace; the sentinel for the affected category
still goes out, and the worker keeps serving jobs.
*/
package worker
