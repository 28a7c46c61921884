package wheel

import "time"

// SemanticCommand is a manufacturer-independent action a caller wants to
// perform; BuildCommand translates it into one or more byte-level Commands.
type SemanticCommand int

const (
	CmdBeep SemanticCommand = iota
	CmdLightOn
	CmdLightOff
	CmdLightAuto
	CmdPedalsHard
	CmdPedalsSoft
	CmdPedalsMedium
	CmdMilesOn
	CmdMilesOff
	CmdRollAngleIncrease
	CmdRollAngleDecrease
	CmdRollAngleNormal
	CmdCalibrate
	CmdSetMaxSpeed
	CmdSetCutoutAngle
)

// Command describes one outbound action: Raw is always the bytes to write,
// optionally qualified by a non-zero Delay. The host executes a slice of
// Commands in order, sleeping Delay before writing each one whose Delay is
// non-zero.
type Command struct {
	// Raw is the exact byte sequence to write to the transport.
	Raw []byte
	// Delay is how long the host should wait before sending Raw, relative
	// to the previous command in the same returned slice (or to receipt of
	// the command batch, for the first entry).
	Delay time.Duration
	// Source names a semantic action a byte sequence came from, when
	// HasSource is true. No decoder in this module sets Source or
	// HasSource, including on BuildCommand results; both stay at their zero
	// values.
	Source SemanticCommand
	// HasSource reports whether Source is meaningful.
	HasSource bool
}

// RawCommand builds a Command with no delay.
func RawCommand(b []byte) Command {
	return Command{Raw: b}
}

// DelayedCommand builds a Command to be sent after waiting d.
func DelayedCommand(b []byte, d time.Duration) Command {
	return Command{Raw: b, Delay: d}
}
