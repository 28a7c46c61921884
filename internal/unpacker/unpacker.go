// Package unpacker implements the byte-by-byte frame assemblers shared by
// the manufacturer decoders. Each Assembler is a small explicit state
// machine (§9 design note: "prefer an explicit enum + transition table over
// ad-hoc boolean flags") that consumes one byte at a time and reports
// whether a complete frame is ready. On completion the owning decoder reads
// Frame() and calls Reset() before feeding more bytes; the Veteran decoder
// instead keeps feeding its VeteranUnpacker, which starts a new scan on its
// own and so keeps its CRC-32 latch across frames.
package unpacker

// State names the coarse lifecycle every Assembler moves through. Individual
// assemblers add their own sub-states (e.g. Gotway's garbage-pattern
// recovery) but all of them start at Idle and report completion from
// Collecting.
type State int

const (
	Idle State = iota
	Started
	Collecting
	Done
)

// Assembler reassembles one complete frame from an arbitrary byte stream.
// Feed is called once per byte of a notification run; it returns true
// exactly when Frame() becomes valid. A caller that gets a false return
// should keep feeding bytes; a caller that gets true should read Frame(),
// then call Reset() before feeding more bytes (even bytes from the same
// notification run — callers are expected to feed one byte at a time and
// stop at the first complete frame per run of Feed calls, or to keep
// feeding to pick up a second frame packed into the same notification).
type Assembler interface {
	// Feed consumes one byte, returning true when a complete frame is
	// ready.
	Feed(b byte) bool
	// Frame returns the most recently completed frame's bytes. Its result
	// is only meaningful immediately after Feed returned true, and only
	// until the next Feed or Reset call.
	Frame() []byte
	// Reset clears all assembly state, discarding any partial frame.
	Reset()
}
