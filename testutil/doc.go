// Package testutil provides shared test doubles, most importantly a
// scripted surface.Driver that records the calls the engine makes against
// a page and plays back configured selector state and JSON fetch results.
package testutil
