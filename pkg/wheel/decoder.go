package wheel

import "time"

// Type identifies a wheel manufacturer/protocol family. It is the factory's
// lookup key.
type Type int

const (
	TypeUnknown Type = iota
	TypeGotway
	TypeVeteran
	TypeKingsong
	TypeNinebot
	TypeNinebotZ
	TypeInMotionV1
	TypeInMotionV2
	TypeAutoDetect
)

// String renders the Type the way logs and the HTTP gateway surface it.
func (t Type) String() string {
	switch t {
	case TypeGotway:
		return "gotway"
	case TypeVeteran:
		return "veteran"
	case TypeKingsong:
		return "kingsong"
	case TypeNinebot:
		return "ninebot"
	case TypeNinebotZ:
		return "ninebot_z"
	case TypeInMotionV1:
		return "inmotion_v1"
	case TypeInMotionV2:
		return "inmotion_v2"
	case TypeAutoDetect:
		return "auto"
	default:
		return "unknown"
	}
}

// ParseType maps a gateway/CLI string back to a Type; ok is false for an
// unrecognized name.
func ParseType(s string) (Type, bool) {
	for t := TypeGotway; t <= TypeAutoDetect; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return TypeUnknown, false
}

// DecodedData is what a Decoder's Decode call returns for a byte run that
// produced at least one complete, valid frame.
type DecodedData struct {
	// NewState is the snapshot to replace the caller's previous one with.
	NewState State
	// Commands are outbound byte sequences the host must write back through
	// the transport, in order, honoring each Command's Delay.
	Commands []Command
	// HasNewData is true whenever Decode returns ok: every decoder in this
	// module sets it for each call that decoded at least one frame,
	// including a call whose only frame produced an ACK command.
	HasNewData bool
	// News is a one-shot textual event associated with this call (alert
	// text, mode-change acknowledgement); empty when nothing newsworthy
	// happened.
	News string
}

// Clock supplies monotonic time to decoders that need it (only Veteran's
// 100ms stale-frame guard). Decoders never sleep; they only read the clock.
type Clock interface {
	NowMillis() int64
}

// SystemClock is the default Clock, backed by the wall clock.
type SystemClock struct{}

// NowMillis implements Clock.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Decoder is the uniform contract every manufacturer decoder implements.
// A Decoder instance owns its own internal mutable state (unpacker buffer,
// identity/version, gamma key, BMS accumulators, retry counters) behind an
// internal lock; Decode is the only method that mutates it based on new
// bytes.
type Decoder interface {
	// Decode feeds data through the decoder's frame assembler. prev is the
	// most recent snapshot the caller holds; cfg carries this call's
	// options (callers may vary cfg between calls, e.g. if the user
	// changes a setting mid-session). ok is false when the byte run
	// contained no complete new frame and ordinary State equality would
	// hold — callers should treat a false ok as "nothing to do" rather than
	// inspect the zero DecodedData.
	Decode(data []byte, prev State, cfg DecoderConfig) (DecodedData, bool)

	// IsReady reports whether the decoder has learned enough identity
	// information (firmware/model/version) to consider the connection
	// fully established. It is advisory, not gating: Decode still produces
	// telemetry from a live frame even when IsReady is false.
	IsReady() bool

	// Reset idempotently clears all internal state: unpacker buffer,
	// identity/version, gamma key, BMS accumulators, retry counters, and
	// any latched protocol mode (e.g. Veteran's CRC-32 latch).
	Reset()

	// InitCommands returns the commands to send once, immediately after the
	// transport connects.
	InitCommands() []Command

	// KeepAliveCommand returns the next keep-alive command to send, if the
	// decoder's connection state machine currently wants one. ok is false
	// when no keep-alive is due (some decoders, e.g. Kingsong, never need
	// one).
	KeepAliveCommand() (Command, bool)

	// KeepAliveIntervalMillis is how often the host should poll
	// KeepAliveCommand.
	KeepAliveIntervalMillis() int64

	// BuildCommand translates a semantic action into one or more
	// byte-level commands, possibly staggered with delays.
	BuildCommand(cmd SemanticCommand, cfg DecoderConfig) []Command
}
