// Package engine ties the bridge together: one session connector, a
// registry of named conversation controllers sharing it, the retry policy,
// and the optional transcript archive. Complete is the single entry point
// the HTTP handlers call; everything below it is serialized per
// conversation and bounded by the browser page budget.
package engine
