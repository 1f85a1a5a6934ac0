// Package agent hosts cooperative duty-cycle agents on dedicated threads.
// An agent's DoWork returns the amount of work done; the idle strategy backs
// off when a pass produces none.
package agent
