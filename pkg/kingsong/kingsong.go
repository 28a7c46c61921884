// Package kingsong decodes the Kingsong wire protocol: fixed 20-byte
// little-endian frames keyed by a frame-type byte, including the one frame
// type (0xA4) that requires an immediate acknowledgement reply.
package kingsong

import (
	"sync"
	"time"

	"github.com/nathan234/wheellog-decoders/internal/unpacker"
	"github.com/nathan234/wheellog-decoders/pkg/codec"
	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

// Decoder implements wheel.Decoder for Kingsong wheels.
type Decoder struct {
	mu sync.Mutex

	asm *unpacker.KingsongUnpacker

	name    string
	serial  string
	version string

	alarm1, alarm2, alarm3 uint16
	maxSpeed               uint16
}

// New returns a Decoder with no identity information yet learned.
func New() *Decoder {
	return &Decoder{asm: unpacker.NewKingsongUnpacker()}
}

// IsReady implements wheel.Decoder.
func (d *Decoder) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name != "" && d.serial != ""
}

// Reset implements wheel.Decoder.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.asm.Reset()
	d.name, d.serial, d.version = "", "", ""
	d.alarm1, d.alarm2, d.alarm3, d.maxSpeed = 0, 0, 0, 0
}

func frameRequest(frameType byte) wheel.Command {
	f := make([]byte, 20)
	f[0], f[1] = 0xAA, 0x55
	f[16] = frameType
	f[17] = 0x14
	f[18], f[19] = 0x5A, 0x5A
	return wheel.RawCommand(f)
}

// InitCommands implements wheel.Decoder: name, serial, then alarm-settings
// fetch, staged 100ms apart.
func (d *Decoder) InitCommands() []wheel.Command {
	return []wheel.Command{
		frameRequest(0x9B),
		delayed(frameRequest(0x63), 100),
		delayed(frameRequest(0x98), 100),
	}
}

func delayed(c wheel.Command, ms int) wheel.Command {
	c.Delay = time.Duration(ms) * time.Millisecond
	return c
}

// KeepAliveCommand implements wheel.Decoder. Kingsong streams unprompted.
func (d *Decoder) KeepAliveCommand() (wheel.Command, bool) { return wheel.Command{}, false }

// KeepAliveIntervalMillis implements wheel.Decoder.
func (d *Decoder) KeepAliveIntervalMillis() int64 { return 0 }

// BuildCommand implements wheel.Decoder. Kingsong's documented outbound
// surface in this module's scope is limited to the init frames InitCommands
// returns and the ack frame Decode issues.
func (d *Decoder) BuildCommand(wheel.SemanticCommand, wheel.DecoderConfig) []wheel.Command {
	return nil
}

// Decode implements wheel.Decoder.
func (d *Decoder) Decode(data []byte, prev wheel.State, cfg wheel.DecoderConfig) (wheel.DecodedData, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := prev
	changed := false
	var commands []wheel.Command

	for _, b := range data {
		if !d.asm.Feed(b) {
			continue
		}
		frame := append([]byte(nil), d.asm.Frame()...)
		d.asm.Reset()

		next, ack, ok := d.decodeFrame(frame, state)
		if !ok {
			continue
		}
		state = next
		changed = true
		if ack != nil {
			commands = append(commands, *ack)
		}
	}

	if !changed {
		return wheel.DecodedData{}, false
	}
	state.WheelType = wheel.TypeKingsong
	return wheel.DecodedData{NewState: state, Commands: commands, HasNewData: true}, true
}

func (d *Decoder) decodeFrame(f []byte, prev wheel.State) (wheel.State, *wheel.Command, bool) {
	if len(f) != 20 {
		return prev, nil, false
	}
	state := prev
	frameType := f[16]

	switch frameType {
	case 0xA9:
		state.Voltage = uint32(codec.LeU16(f, 2))
		state.Speed = int32(codec.LeI16(f, 4))
		state.TotalDistance = int64(codec.LeU32(f, 6))
		state.Current = int32(codec.LeI16(f, 10))
		state.Temperature = int32(float64(codec.LeI16(f, 12)) / 100 * 100)
		state.ModeStr = modeString(f[15])
		if state.Voltage > 0 {
			state.Power = int32(codec.RoundHalfAwayFromZero(float64(state.Current) / 100.0 * float64(state.Voltage)))
		}

	case 0xB9:
		state.WheelDistance = int64(codec.LeU32(f, 2))
		state.Temperature2 = int32(f[13])

	case 0xBB:
		nameBytes := f[2:16]
		n := 0
		for n < len(nameBytes) && nameBytes[n] != 0 {
			n++
		}
		d.name = string(nameBytes[:n])
		d.version = extractVersion(d.name)
		state.Model = d.name
		state.Version = d.version

	case 0xB3:
		d.serial = codec.Hex(f[2:16])
		state.SerialNumber = d.serial

	case 0xB5:
		d.alarm1 = uint16(f[4])
		d.alarm2 = uint16(f[6])
		d.alarm3 = uint16(f[8])
		d.maxSpeed = uint16(f[10])

	case 0xA4:
		d.alarm1 = uint16(f[4])
		d.alarm2 = uint16(f[6])
		d.alarm3 = uint16(f[8])
		d.maxSpeed = uint16(f[10])
		ack := d.ackFrame()
		return state, &ack, true

	case 0xF5:
		state.Output = int32(f[15]) * 100

	case 0xF6:
		// speed limit, informational only in this module's scope

	case 0xF1, 0xF2:
		bms := state.Bms1
		if frameType == 0xF2 {
			bms = state.Bms2
		}
		if bms == nil {
			bms = &wheel.SmartBms{}
		}
		applyBmsSlice(bms, f[17], f)
		bms.Recompute()
		if frameType == 0xF1 {
			state.Bms1 = bms
		} else {
			state.Bms2 = bms
		}

	default:
		return prev, nil, false
	}

	return state, nil, true
}

func (d *Decoder) ackFrame() wheel.Command {
	f := make([]byte, 20)
	f[0], f[1] = 0xAA, 0x55
	f[4] = byte(d.alarm1)
	f[6] = byte(d.alarm2)
	f[8] = byte(d.alarm3)
	f[10] = byte(d.maxSpeed)
	f[16] = 0x98
	f[17] = 0x14
	f[18], f[19] = 0x5A, 0x5A
	return wheel.RawCommand(f)
}

func applyBmsSlice(bms *wheel.SmartBms, pNum byte, f []byte) {
	switch pNum {
	case 0x00:
		bms.Voltage = uint32(codec.LeU16(f, 2))
		bms.Current = int32(codec.LeI16(f, 4))
		bms.RemainingCapacity = uint32(codec.LeU16(f, 6))
		bms.FullCycles = uint32(codec.LeU16(f, 8))
	default:
		startIdx := (int(pNum) - 1) * 8
		for i := 0; i < 8; i++ {
			idx := startIdx + i
			if idx >= len(bms.CellVoltages) {
				break
			}
			pos := 2 + i*2
			if pos+1 >= len(f) {
				break
			}
			bms.CellVoltages[idx] = uint32(codec.LeU16(f, pos))
			if idx+1 > bms.CellNum {
				bms.CellNum = idx + 1
			}
		}
	}
}

func modeString(raw byte) string {
	switch raw {
	case 0:
		return "idle"
	case 1:
		return "riding"
	default:
		return "unknown"
	}
}

// extractVersion reads the trailing 4 digits of a Kingsong name string as
// "{high-2-digits}.{low-2-digits}".
func extractVersion(name string) string {
	digits := ""
	for i := len(name) - 1; i >= 0 && len(digits) < 4; i-- {
		if name[i] >= '0' && name[i] <= '9' {
			digits = string(name[i]) + digits
		} else if digits != "" {
			break
		}
	}
	if len(digits) != 4 {
		return ""
	}
	return digits[:2] + "." + digits[2:]
}
