// Package correlation pairs a sender's loosely-ordered messages (a customer
// name in one message, photos in another) into a single order intake unit.
//
// The pairing rules, evaluated atomically per sender on every inbound event:
//
//   - name and photos in one message: previous buffered photos are
//     superseded and dropped, the combined message dispatches immediately.
//   - name only: buffered photos younger than the correlation window are
//     claimed and dispatched; older ones are dropped with a notice to the
//     sender. With nothing claimable the name is stored and waits.
//   - photos only: with a name already stored the photos dispatch
//     immediately; otherwise they are buffered, each with its own arrival
//     timestamp.
//
// Expiry is lazy: a buffered photo's age is only examined when the next
// event for that sender arrives. Nothing fires mid-window, so an abandoned
// buffer lingers until the next event or the janitor's inactivity sweep.
package correlation
