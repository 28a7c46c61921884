// Package gotway decodes the Gotway/Begode wire protocol: a fixed 24-byte
// frame, an optional ASCII identity handshake, and a polarity/gear-ratio
// normalization layer shared with several sibling models (ExtremeBull,
// Freestyl3r, SV/Alexovik).
package gotway

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/nathan234/wheellog-decoders/internal/unpacker"
	"github.com/nathan234/wheellog-decoders/pkg/codec"
	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

const maxIdentityAttempts = 50

// firmware tags selected from the identity handshake prefix.
const (
	fwUnknown      = ""
	fwBegode       = "Begode"
	fwExtremeBull  = "ExtremeBull"
	fwFreestyl3r   = "Freestyl3r"
	fwSV           = "SV"
)

var voltageScale = [...]float64{1.0, 1.25, 1.5, 1.7380952380952381, 2.0, 2.5, 2.25}

// Decoder implements wheel.Decoder for Gotway/Begode wheels.
type Decoder struct {
	mu sync.Mutex

	asm *unpacker.GotwayUnpacker

	fw    string
	model string
	imuID string
	ver   string

	trueVoltage bool
	trueCurrent bool
	truePwm     bool

	identityAttempts int
	ready            bool
}

// New returns a Decoder with no identity information yet learned.
func New() *Decoder {
	return &Decoder{asm: unpacker.NewGotwayUnpacker()}
}

// IsReady implements wheel.Decoder.
func (d *Decoder) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// Reset implements wheel.Decoder.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.asm.Reset()
	d.fw = fwUnknown
	d.model = ""
	d.imuID = ""
	d.ver = ""
	d.trueVoltage = false
	d.trueCurrent = false
	d.truePwm = false
	d.identityAttempts = 0
	d.ready = false
}

// InitCommands implements wheel.Decoder. Gotway needs no init handshake
// beyond the identity probes Decode issues lazily.
func (d *Decoder) InitCommands() []wheel.Command { return nil }

// KeepAliveCommand implements wheel.Decoder. Gotway streams unprompted.
func (d *Decoder) KeepAliveCommand() (wheel.Command, bool) { return wheel.Command{}, false }

// KeepAliveIntervalMillis implements wheel.Decoder.
func (d *Decoder) KeepAliveIntervalMillis() int64 { return 0 }

// Decode implements wheel.Decoder.
func (d *Decoder) Decode(data []byte, prev wheel.State, cfg wheel.DecoderConfig) (wheel.DecodedData, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// An ASCII identity reply never starts with the 0x55 0xAA binary
	// header, so a run that doesn't look like a frame at all is checked for
	// an identity string before being fed byte-by-byte to the assembler.
	if isASCIIIdentity(data) {
		d.applyIdentity(string(data))
		return wheel.DecodedData{}, false
	}

	state := prev
	changed := false
	var commands []wheel.Command
	var news string

	for _, b := range data {
		if !d.asm.Feed(b) {
			continue
		}
		frame := append([]byte(nil), d.asm.Frame()...)
		d.asm.Reset()

		next, gotNews, ok := d.decodeFrame(frame, state, cfg)
		if !ok {
			continue
		}
		state = next
		changed = true
		if gotNews != "" {
			news = gotNews
		}
	}

	if changed && (d.fw == fwUnknown || d.model == "") && d.identityAttempts < maxIdentityAttempts {
		d.identityAttempts++
		if d.fw == fwUnknown {
			commands = append(commands, wheel.RawCommand([]byte("V")))
		} else {
			commands = append(commands, wheel.RawCommand([]byte("N")))
		}
	} else if changed && (d.fw == fwUnknown || d.model == "") && d.identityAttempts >= maxIdentityAttempts {
		if d.fw == fwUnknown {
			d.fw = fwBegode
		}
		if d.model == "" {
			d.model = d.fw
		}
		d.ver = "-"
		d.ready = true
	}

	if !changed {
		return wheel.DecodedData{}, false
	}
	state.Model = d.model
	state.Version = d.ver
	state.WheelType = wheel.TypeGotway
	return wheel.DecodedData{NewState: state, Commands: commands, HasNewData: true, News: news}, true
}

func isASCIIIdentity(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for _, b := range data {
		if b < 0x20 || b > 0x7E {
			return false
		}
	}
	return true
}

func (d *Decoder) applyIdentity(s string) {
	switch {
	case strings.HasPrefix(s, "NAME "):
		d.model = strings.TrimPrefix(s, "NAME ")
	case strings.HasPrefix(s, "GW"):
		d.fw = fwBegode
	case strings.HasPrefix(s, "JN"):
		d.fw = fwExtremeBull
	case strings.HasPrefix(s, "CF"):
		d.fw = fwFreestyl3r
	case strings.HasPrefix(s, "BF"):
		d.fw = fwSV
	case strings.HasPrefix(s, "MPU"):
		d.imuID = s
	}
	if d.fw != fwUnknown && d.model != "" {
		d.ready = true
	}
}

// decodeFrame dispatches on the frame-type byte (offset 18) and returns the
// updated snapshot, any news text, and whether the frame produced new
// telemetry.
func (d *Decoder) decodeFrame(f []byte, prev wheel.State, cfg wheel.DecoderConfig) (wheel.State, string, bool) {
	if len(f) != 24 {
		return prev, "", false
	}
	state := prev
	frameType := f[18]
	news := ""

	switch frameType {
	case 0x00:
		voltage := codec.BeU16(f, 2)
		state.Voltage = uint32(math.Round(float64(voltage) * d.voltageMultiplier(cfg)))

		rawSpeed := codec.BeI16(f, 4)
		speed := codec.RoundHalfAwayFromZero(float64(rawSpeed) * 3.6)
		state.Speed = d.normalizeSigned(int32(speed), cfg)

		state.WheelDistance = int64(codec.BeU16(f, 8))

		rawPhase := codec.BeI16(f, 10)
		state.PhaseCurrent = d.normalizeSigned(int32(rawPhase), cfg)

		rawTemp := codec.BeI16(f, 12)
		state.Temperature = d.imuTemperature(rawTemp)

		rawPwm := codec.BeI16(f, 14)
		state.Output = d.normalizeSigned(int32(rawPwm)*10, cfg)
		state.CalculatedPwm = float64(state.Output) / 10000.0

	case 0x01:
		d.trueVoltage = true
		trueVoltage := codec.BeU16(f, 2)
		state.Voltage = uint32(trueVoltage)
		if state.Bms1 == nil {
			state.Bms1 = &wheel.SmartBms{}
		}
		if state.Bms2 == nil {
			state.Bms2 = &wheel.SmartBms{}
		}
		state.Bms1.Temperatures[0] = int32(f[4])
		state.Bms2.Temperatures[0] = int32(f[5])
		state.Bms1.Voltage = uint32(codec.BeU16(f, 6))
		state.Bms2.Voltage = uint32(codec.BeU16(f, 8))

	case 0x02, 0x03:
		bms := state.Bms1
		if frameType == 0x03 {
			bms = state.Bms2
		}
		if bms == nil {
			bms = &wheel.SmartBms{}
		}
		packIndex := int(f[19])
		for i := 0; i < 8; i++ {
			idx := packIndex*8 + i
			if idx >= len(bms.CellVoltages) {
				break
			}
			bms.CellVoltages[idx] = uint32(codec.BeU16(f, 2+i*2))
			if idx+1 > bms.CellNum {
				bms.CellNum = idx + 1
			}
		}
		bms.Recompute()
		if frameType == 0x02 {
			state.Bms1 = bms
		} else {
			state.Bms2 = bms
		}

	case 0x04:
		state.TotalDistance = int64(codec.BeU32(f, 2))

		settings := codec.BeU16(f, 6)
		pedalsRaw := (settings >> 13) & 0x03
		state.PedalsMode = int32(2 - int(pedalsRaw)) // preserved: raw value 3 yields published -1

		tiltBack := int32(f[16])
		if tiltBack >= 100 {
			tiltBack = 0
		}
		state.TiltBack = tiltBack

		alertMask := f[14]
		news = alertNames(alertMask)

		inMiles := settings&0x01 != 0
		state.InMiles = inMiles
		if inMiles {
			const milesDivisor = 0.62137119223733
			state.TotalDistance = int64(float64(state.TotalDistance) / milesDivisor)
			state.WheelDistance = int64(float64(state.WheelDistance) / milesDivisor)
			state.Speed = int32(float64(state.Speed) / milesDivisor)
		}

	case 0x07:
		d.trueCurrent = true
		batteryCurrent := codec.BeI16(f, 2)
		state.Current = -int32(batteryCurrent) // preserved: sign inverted
		state.Temperature2 = int32(codec.BeI16(f, 4))
		d.truePwm = true
		state.Output = int32(codec.BeI16(f, 6)) * 10

	case 0xFF:
		if d.fw == fwSV {
			state.CutoutAngle = int32(f[2]) + 260
			state.BrakingCurrent = int32(codec.BeI16(f, 4))
			state.Pid[0] = int32(f[6])
			state.Pid[1] = int32(f[7])
			state.Pid[2] = int32(f[8])
		}

	default:
		return prev, "", false
	}

	if cfg.UseRatio {
		const ratio = 0.875
		state.Speed = int32(codec.RoundHalfAwayFromZero(float64(state.Speed) * ratio))
		state.WheelDistance = int64(codec.RoundHalfAwayFromZero(float64(state.WheelDistance) * ratio))
		state.TotalDistance = int64(codec.RoundHalfAwayFromZero(float64(state.TotalDistance) * ratio))
	}

	state.BatteryLevel = batteryPercent(state.Voltage, cfg.UseCustomPercents)
	if state.Voltage > 0 {
		state.Power = int32(codec.RoundHalfAwayFromZero(float64(state.Current) / 100.0 * float64(state.Voltage)))
	}

	return state, news, true
}

func (d *Decoder) voltageMultiplier(cfg wheel.DecoderConfig) float64 {
	if cfg.GotwayVoltage < 0 || cfg.GotwayVoltage >= len(voltageScale) {
		return 1.0
	}
	return voltageScale[cfg.GotwayVoltage]
}

// normalizeSigned applies the GotwayNegative polarity knob: 0 means
// "publish the absolute value", otherwise multiply. SV firmware already
// reports correctly signed values and is left untouched.
func (d *Decoder) normalizeSigned(v int32, cfg wheel.DecoderConfig) int32 {
	if d.fw == fwSV {
		return v
	}
	if cfg.GotwayNegative == 0 {
		if v < 0 {
			return -v
		}
		return v
	}
	return v * int32(cfg.GotwayNegative)
}

func (d *Decoder) imuTemperature(raw int16) int32 {
	if d.fw == fwSV {
		// MPU6500 formula.
		return int32(codec.RoundHalfAwayFromZero((float64(raw)/333.87 + 21.0) * 100))
	}
	// MPU6050 formula.
	return int32(codec.RoundHalfAwayFromZero((float64(raw)/340.0 + 36.53) * 100))
}

func batteryPercent(voltage uint32, custom bool) int32 {
	v := float64(voltage)
	if custom {
		switch {
		case v >= 6680:
			return 100
		case v >= 5440:
			return int32(codec.RoundHalfAwayFromZero((v - 5320) / 13.6))
		case v >= 5120:
			return int32(codec.RoundHalfAwayFromZero((v - 5120) / 36))
		default:
			return 0
		}
	}
	switch {
	case v <= 5290:
		return 0
	case v >= 6580:
		return 100
	default:
		return int32((v - 5290) / 13)
	}
}

var alertBits = []string{
	"wheelAlarm", "speed2", "speed1", "lowVoltage",
	"overVoltage", "overTemperature", "errHallSensors", "transportMode",
}

func alertNames(mask byte) string {
	var names []string
	for i, name := range alertBits {
		if mask&(1<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, " ")
}

// BuildCommand implements wheel.Decoder.
func (d *Decoder) BuildCommand(cmd wheel.SemanticCommand, cfg wheel.DecoderConfig) []wheel.Command {
	switch cmd {
	case wheel.CmdBeep:
		return []wheel.Command{wheel.RawCommand([]byte("b"))}
	case wheel.CmdLightOn:
		return []wheel.Command{wheel.RawCommand([]byte("Q"))}
	case wheel.CmdLightOff:
		return []wheel.Command{wheel.RawCommand([]byte("E"))}
	case wheel.CmdLightAuto:
		return []wheel.Command{wheel.RawCommand([]byte("T"))}
	case wheel.CmdPedalsHard:
		return []wheel.Command{wheel.RawCommand([]byte("h"))}
	case wheel.CmdPedalsSoft:
		return []wheel.Command{wheel.RawCommand([]byte("f"))}
	case wheel.CmdPedalsMedium:
		return []wheel.Command{wheel.RawCommand([]byte("s"))}
	case wheel.CmdMilesOn:
		return []wheel.Command{wheel.RawCommand([]byte("m"))}
	case wheel.CmdMilesOff:
		return []wheel.Command{wheel.RawCommand([]byte("g"))}
	case wheel.CmdRollAngleIncrease:
		return []wheel.Command{wheel.RawCommand([]byte(">"))}
	case wheel.CmdRollAngleDecrease:
		return []wheel.Command{wheel.RawCommand([]byte("<"))}
	case wheel.CmdRollAngleNormal:
		return []wheel.Command{wheel.RawCommand([]byte("="))}
	case wheel.CmdCalibrate:
		return []wheel.Command{
			wheel.RawCommand([]byte("c")),
			wheel.DelayedCommand([]byte("y"), 300*time.Millisecond),
		}
	case wheel.CmdSetCutoutAngle:
		// DecoderConfig carries no cutout angle, so the trailing angle byte
		// is always 0.
		return []wheel.Command{wheel.RawCommand([]byte{0x72, 0x73, 0})}
	default:
		return nil
	}
}

// SetMaxSpeedCommands builds the staged max-speed command sequence: `b`,
// `W`, `Y`, tens digit, units digit, `b`, `b`, each staggered as the wire
// protocol requires.
func SetMaxSpeedCommands(kph int) []wheel.Command {
	tens := byte('0' + (kph/10)%10)
	units := byte('0' + kph%10)
	return []wheel.Command{
		wheel.RawCommand([]byte("b")),
		wheel.DelayedCommand([]byte("W"), 100*time.Millisecond),
		wheel.DelayedCommand([]byte("Y"), 100*time.Millisecond),
		wheel.DelayedCommand([]byte{tens}, 100*time.Millisecond),
		wheel.DelayedCommand([]byte{units}, 100*time.Millisecond),
		wheel.DelayedCommand([]byte("b"), 100*time.Millisecond),
		wheel.DelayedCommand([]byte("b"), 300*time.Millisecond),
	}
}
