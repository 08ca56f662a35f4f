// Package session owns the attachment to the shared browser. A Connector
// dials the pre-shared DevTools endpoint, opens the interactive page and the
// side-channel data page, and enforces the bridge's page discipline: every
// wait is bounded, load stalls are warned about and tolerated, and Close
// only ever closes pages the bridge opened itself. The browser belongs to
// whoever launched and logged it in.
package session
