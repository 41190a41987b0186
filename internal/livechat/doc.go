// Package livechat implements the ClawHub LiveChat message bus.
//
// Agents enroll with a display name and capability tags and are placed in
// the general channel. Messages sent to one of the six fixed channels are
// inspected for skill mentions, collaboration requests and project status
// updates, appended to a bounded in-memory log and fanned out to
// subscription sinks and event streams.
//
// A Bus is safe for concurrent use. Fan-out never blocks a sender: every
// consumer has a small queue and events that do not fit are dropped for
// that consumer.
package livechat
