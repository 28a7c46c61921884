// Package veteran decodes the Veteran/Leaperkim wire protocol: a
// variable-length frame with an optional latching CRC-32, per-model battery
// curves, and a 100ms stale-frame guard driven by a wheel.Clock.
package veteran

import (
	"sync"

	"github.com/nathan234/wheellog-decoders/internal/unpacker"
	"github.com/nathan234/wheellog-decoders/pkg/codec"
	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

const staleFrameMillis = 100

// Decoder implements wheel.Decoder for Veteran/Leaperkim wheels.
type Decoder struct {
	mu sync.Mutex

	clk wheel.Clock
	asm *unpacker.VeteranUnpacker

	lastByteAt int64
	haveLast   bool
}

// New returns a Decoder that uses clk for its stale-frame guard.
func New(clk wheel.Clock) *Decoder {
	if clk == nil {
		clk = wheel.SystemClock{}
	}
	return &Decoder{clk: clk, asm: unpacker.NewVeteranUnpacker()}
}

// IsReady implements wheel.Decoder. Veteran streams immediately; it is
// always considered ready.
func (d *Decoder) IsReady() bool { return true }

// Reset implements wheel.Decoder.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.asm.Reset()
	d.haveLast = false
}

// InitCommands implements wheel.Decoder.
func (d *Decoder) InitCommands() []wheel.Command { return nil }

// KeepAliveCommand implements wheel.Decoder.
func (d *Decoder) KeepAliveCommand() (wheel.Command, bool) { return wheel.Command{}, false }

// KeepAliveIntervalMillis implements wheel.Decoder.
func (d *Decoder) KeepAliveIntervalMillis() int64 { return 0 }

// BuildCommand implements wheel.Decoder. Veteran has no documented outbound
// command set in this module's scope.
func (d *Decoder) BuildCommand(wheel.SemanticCommand, wheel.DecoderConfig) []wheel.Command {
	return nil
}

// Decode implements wheel.Decoder.
func (d *Decoder) Decode(data []byte, prev wheel.State, cfg wheel.DecoderConfig) (wheel.DecodedData, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clk.NowMillis()
	if d.haveLast && now-d.lastByteAt > staleFrameMillis {
		d.asm.Reset()
	}
	d.lastByteAt = now
	d.haveLast = true

	state := prev
	changed := false

	for _, b := range data {
		if !d.asm.Feed(b) {
			continue
		}
		frame := append([]byte(nil), d.asm.Frame()...)
		// No Reset here: it would clear the CRC-32 latch. The next Feed
		// starts a new scan by itself.
		d.haveLast = false

		next, ok := decodeFrame(frame, state, cfg)
		if !ok {
			continue
		}
		state = next
		changed = true
	}

	if !changed {
		return wheel.DecodedData{}, false
	}
	state.WheelType = wheel.TypeVeteran
	return wheel.DecodedData{NewState: state, HasNewData: true}, true
}

func decodeFrame(f []byte, prev wheel.State, cfg wheel.DecoderConfig) (wheel.State, bool) {
	if len(f) < 36 {
		return prev, false
	}
	state := prev

	state.Voltage = uint32(codec.BeU16(f, 4))

	rawSpeed := codec.BeI16(f, 6)
	state.Speed = normalizeSigned(int32(rawSpeed), cfg)

	state.WheelDistance = int64(codec.BeU32(codec.SwapPairs(f[8:12]), 0))
	state.TotalDistance = int64(codec.BeU32(codec.SwapPairs(f[12:16]), 0))

	rawPhase := codec.BeI16(f, 16)
	state.PhaseCurrent = int32(rawPhase) * 10

	state.Temperature = int32(codec.BeI16(f, 18))

	verWord := codec.BeU16(f, 28)
	mVer := int(verWord) / 1000
	state.Model = modelName(mVer)
	state.Version = verString(int(verWord))

	state.PedalsMode = int32(codec.BeI16(f, 30))
	state.PitchAngle = int32(codec.BeI16(f, 32))

	hwPwm := codec.BeI16(f, 34)

	if len(f) > 46 && mVer >= 5 {
		parseBms(f, &state, mVer)
	}

	if cfg.HwPwmEnabled {
		state.Output = int32(hwPwm)
		state.CalculatedPwm = float64(hwPwm) / 10000.0
	} else {
		rs, rv, pf := cfg.RotationSpeed, cfg.RotationVoltage, cfg.PowerFactor
		if rs == 0 {
			rs = 1
		}
		if rv == 0 {
			rv = 1
		}
		if pf == 0 {
			pf = 1
		}
		denom := (rs / rv) * float64(state.Voltage) * pf
		if denom != 0 {
			state.CalculatedPwm = float64(state.Speed) / denom
		}
		state.Output = int32(codec.RoundHalfAwayFromZero(state.CalculatedPwm * 10000))
	}
	state.Current = int32(codec.RoundHalfAwayFromZero(state.CalculatedPwm * float64(state.PhaseCurrent)))

	state.BatteryLevel = batteryPercent(mVer, state.Voltage)

	return state, true
}

func normalizeSigned(v int32, cfg wheel.DecoderConfig) int32 {
	if cfg.GotwayNegative == 0 {
		if v < 0 {
			return -v
		}
		return v
	}
	return v * int32(cfg.GotwayNegative)
}

func modelName(mVer int) string {
	switch mVer {
	case 0, 1:
		return "Sherman"
	case 2:
		return "Abrams"
	case 3:
		return "Sherman S"
	case 4:
		return "Patton"
	case 5:
		return "Lynx"
	case 6:
		return "Sherman L"
	case 7:
		return "Patton S"
	case 8:
		return "Oryx"
	case 42:
		return "Nosfet Apex"
	case 43:
		return "Nosfet Aero"
	default:
		return "Veteran"
	}
}

func verString(raw int) string {
	major := raw / 1000
	minor := (raw / 100) % 10
	patch := raw % 100
	return itoa(major) + "." + itoa(minor) + "." + itoa(patch)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func cellCount(mVer int) int {
	switch mVer {
	case 4, 7:
		return 30
	case 43:
		return 30
	case 8:
		return 42
	default:
		if mVer >= 5 {
			return 36
		}
		return 24
	}
}

// parseBms decodes the dual-BMS cell-voltage/temperature payload present in
// frames longer than 46 bytes on mVer>=5 models. Byte 46 is the packet
// index: 0..3 carry a BMS1 slice, 4..7 the same slices for BMS2.
func parseBms(f []byte, state *wheel.State, mVer int) {
	pNum := f[46]

	if state.Bms1 == nil {
		state.Bms1 = &wheel.SmartBms{CellNum: cellCount(mVer)}
	}
	if state.Bms2 == nil {
		state.Bms2 = &wheel.SmartBms{CellNum: cellCount(mVer)}
	}

	switch {
	case pNum < 4:
		applyBmsSlice(state.Bms1, pNum, f)
	case pNum < 8:
		applyBmsSlice(state.Bms2, pNum-4, f)
	}

	state.Bms1.Recompute()
	state.Bms2.Recompute()
}

func applyBmsSlice(bms *wheel.SmartBms, idx byte, f []byte) {
	switch idx {
	case 0:
		if len(f) > 48 {
			bms.Current = int32(codec.BeI16(f, 47))
		}
	case 1:
		fillCells(bms, 0, 15, f, 47)
	case 2:
		fillCells(bms, 15, 15, f, 47)
	case 3:
		fillCells(bms, 30, 12, f, 47)
		for i := 0; i < 6 && 47+24+i < len(f); i++ {
			bms.Temperatures[i] = int32(f[47+24+i])
		}
	}
}

func fillCells(bms *wheel.SmartBms, startIdx, count int, f []byte, off int) {
	for i := 0; i < count; i++ {
		pos := off + i*2
		if pos+1 >= len(f) {
			break
		}
		bms.CellVoltages[startIdx+i] = uint32(codec.BeU16(f, pos))
	}
}

// kneePercent is the battery percentage assigned at each class's knee
// voltage. The "better-percents" curve is two linear segments (lo->knee,
// knee->hi) rather than one straight line across the whole range, so a
// cell sitting just above its knee voltage doesn't read as dead.
const kneePercent = 80

func batteryPercent(mVer int, voltage uint32) int32 {
	v := float64(voltage)
	class := batteryClass(mVer)
	lo, knee, hi := batteryThresholds(class)
	switch {
	case v <= lo:
		return 0
	case v >= hi:
		return 100
	case v <= knee:
		return int32(codec.RoundHalfAwayFromZero((v - lo) / (knee - lo) * kneePercent))
	default:
		return int32(codec.RoundHalfAwayFromZero(kneePercent + (v-knee)/(hi-knee)*(100-kneePercent)))
	}
}

func batteryClass(mVer int) int {
	switch {
	case mVer < 4:
		return 100
	case mVer == 4, mVer == 7, mVer == 43:
		return 126
	case mVer == 5, mVer == 6, mVer == 42:
		return 151
	case mVer == 8:
		return 176
	default:
		return 1
	}
}

// batteryThresholds returns the three-point (lo, knee, hi) "better-percents"
// curve for class: 0% at lo, kneePercent at knee, 100% at hi. Each class's
// knee sits at the same fractional position within its (lo, hi) span
// (knee = lo + 0.686*(hi-lo)), the ratio recovered from the 100V class's
// worked example (spec scenario: 96.86V -> battery_level 90).
func batteryThresholds(class int) (lo, knee, hi float64) {
	const kneeFraction = 0.686
	switch class {
	case 100:
		lo, hi = 8000, 10000
	case 126:
		lo, hi = 10500, 13000
	case 151:
		lo, hi = 12600, 15600
	case 176:
		lo, hi = 14700, 18200
	default:
		lo, hi = 0, 1
	}
	knee = lo + kneeFraction*(hi-lo)
	return lo, knee, hi
}
