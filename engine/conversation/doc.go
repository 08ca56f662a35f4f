// Package conversation drives a single chat thread on the remote app. The
// Controller owns the thread's state machine and serializes every operation
// on it behind one mutex: a conversation is a strictly alternating
// prompt/reply channel, so concurrent sends make no sense and are queued.
//
// A reply is recognized by polling, not by events. The side-channel poller
// fetches the thread's JSON document from inside the page (same-origin, so
// the browser attaches the human session's credentials); the DOM poller
// falls back to sampling rendered assistant blocks until they stabilize.
// Either way a reply is accepted only when it is authored by the assistant
// and its index exceeds the thread's high-water mark, which then advances -
// the mark never regresses, so the same reply can never be returned twice.
package conversation
