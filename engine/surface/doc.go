// Package surface is the page-automation layer. It defines the Driver
// interface (the minimal capability set the rest of the engine needs from a
// browser page) and ChromePage, the chromedp implementation that attaches to
// an already-running browser over the DevTools protocol.
//
// Everything above this package talks selectors and text; nothing above it
// imports chromedp.
package surface
