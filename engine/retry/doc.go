// Package retry implements the send retry policy: bounded attempts with a
// uniformly jittered delay band, plus the rate-limit path that sleeps until
// the advertised reset time (with a safety margin) and then grants a single
// extra attempt outside the normal loop.
package retry
