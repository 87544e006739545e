// Package reconcile keeps campaign aggregate counters consistent with the
// recipient rows and the tracking event log.
//
// Counters are a cache. Every operation here recomputes them from the
// authoritative rows and overwrites what is stored; nothing in this package
// increments or decrements relative to a previously stored value. A failed
// read aborts before any write, so a retry is always safe.
//
// Repository implementations live in repository/postgres/.
package reconcile
