// Package reactor is a fine-grained reactive dependency-tracking and
// update-scheduling engine. Values live in cells (signals and memo
// outputs), computations re-run automatically when the cells they read
// change, and a two-queue scheduler guarantees that derived values reach a
// consistent fixed point before any side effect observes them.
//
// All state hangs off an explicit *Runtime handle. A Runtime is
// single-threaded cooperative: exactly one goroutine may drive it, there
// is no internal locking, and re-entrancy is handled by the scheduler
// rather than by nesting. Create one Runtime per independent graph.
package reactor
