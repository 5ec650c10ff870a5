// Package session holds per-sender correlation state: the customer name a
// sender has announced, the attachments received but not yet paired with a
// name, and the activity/throttle metadata the janitor and the
// unauthorized-sender throttle rely on.
//
// All state lives behind the Store interface. The in-memory implementation
// shards sessions by sender so that two senders never contend on the same
// lock, and serializes every mutation for a single sender through Mutate.
package session
