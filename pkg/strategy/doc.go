/*
Package strategy implements the two sync scheduling strategies (C7):
Immediate, which drains the sync queue continuously with a fixed
worker count, and Periodic(delay), which drains the queue completely and
then sleeps for delay before draining again.

Both are built on the Start/Stop/ticker-or-blocking-loop shape used
throughout this codebase's other background workers (a stop channel,
closed by Stop, selected alongside either a ticker or a blocking channel read),
generalized here to wrap an injected executor rather than a fixed
reconciliation body.
*/
package strategy
