// Command uibridge serves an OpenAI-compatible HTTP API backed by an
// already-running browser session on a conversational web app. It attaches
// over the DevTools protocol, drives conversations through the page, and
// translates replies into chat completion responses.
//
// Subcommands: serve (default), health, version, help.
package main
