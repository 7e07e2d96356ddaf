// Package board contains the task board's mirror-group synchronization
// engine.
//
// A mirror group is a set of task rows representing one logical unit of work,
// one row per audience (the agency sees one copy, the customer another).
// Group-shared fields are kept identical across all members by the engine;
// display-partitioning fields (status, order) diverge freely because each
// member occupies a different column position for its audience.
//
// The engine's critical invariant: a room only ever receives the
// deduplicated, audience-filtered view of a group, never the full member
// list. Broadcasting both copies of a task into one audience produces
// duplicate cards, which is exactly the failure mode this package exists to
// prevent.
package board
