// Package engine runs a Kelsen world: the factory registry, its organs and
// its procedures, driven by named actions such as "Organ.addEntry" or
// "Vote.enact".
//
// Single writer:
// Every call goes through Apply, which holds the engine lock for the whole
// call including the procedure-to-organ calls it triggers. Run offers the
// same guarantee as a FIFO loop for callers that prefer a queue.
//
// Records:
// Each call becomes an invocation plus a completion, stamped from the
// logical Clock and identified by content hashes over canonical JSON. A
// procedure's organ mutation is recorded as a child invocation (ParentID
// set) inside the same flow. The whole batch is written to the store in one
// transaction after the call finishes.
//
// Time:
// Callers supply the time of each call. The engine clamps it to be
// non-decreasing and never reads the wall clock, so deadlines depend only
// on the journal.
//
// Restore:
// Open replays the journal's top-level calls against a fresh world and
// refuses to start if any regenerated record differs from the stored one.
package engine
