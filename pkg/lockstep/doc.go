// Package lockstep implements the reliable, in-order, per-frame input
// delivery core of a deterministic lockstep networking session: a
// per-sender reorder/ACK queue, a per-receiver retransmission queue, and
// a cyclic barrier that releases the simulation thread once every peer's
// input for the current frame has arrived.
//
// Socket I/O, serialization and compression live in sibling packages
// (wire, transport); this package only knows about frame numbers, peer
// ids and in-memory queues.
package lockstep
