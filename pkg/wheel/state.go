// Package wheel holds the manufacturer-independent data model every EUC
// protocol decoder produces and consumes: the immutable telemetry snapshot
// (State), the per-pack battery record (SmartBms), outbound commands
// (Command), caller-supplied options (DecoderConfig), and the Decoder
// contract itself.
package wheel

// State is an immutable telemetry snapshot. Every decoder's Decode call
// takes the prior snapshot and returns a new one built by copying the prior
// value and overwriting only the fields the newly-assembled frame touched.
// All physical quantities are fixed-point integers so that equality between
// two snapshots is exact field-for-field; CalculatedPwm is the one
// floating-point exception, permitted because it is an intermediate ratio
// rather than a value callers diff against.
type State struct {
	// Speed is km/h * 100, signed; negative values mean reverse travel when
	// the decoder's polarity config preserves sign.
	Speed int32
	// Voltage is V * 100, unsigned.
	Voltage uint32
	// Current and PhaseCurrent are A * 100, signed; negative during
	// regeneration.
	Current      int32
	PhaseCurrent int32
	// Power is W, signed, derived as round((Current/100) * Voltage).
	Power int32
	// Temperature and Temperature2 are degrees C * 100, signed.
	Temperature  int32
	Temperature2 int32
	// WheelDistance and TotalDistance are always meters, regardless of
	// InMiles.
	WheelDistance int64
	TotalDistance int64
	// BatteryLevel is percent, 0..100+ (may briefly exceed 100 after a full
	// charge on some firmware).
	BatteryLevel int32
	// Output is PWM * 10000, raw hardware reading or computed.
	Output int32
	// CalculatedPwm is a 0..1 ratio; the one field permitted to be a float.
	CalculatedPwm float64
	// InMiles is informational only: all distance/speed fields above are
	// already normalized to metric regardless of this flag.
	InMiles bool
	// PedalsMode is the decoded pedal-sensitivity setting (hard/medium/soft),
	// published per-manufacturer; Gotway publishes `2 - raw` (see the
	// preserved-arithmetic note at its call site).
	PedalsMode int32
	// PitchAngle is the IMU pitch reading in degrees * 100, signed; zero on
	// protocols that don't report it.
	PitchAngle int32
	// MaxSpeed is the rider-configured speed limit, km/h * 100; zero on
	// protocols that don't expose a settings frame.
	MaxSpeed int32
	// TiltBack is Gotway frame 0x04's tilt-back speed threshold, km/h*100;
	// clamped to 0 when the raw reading is >= 100 (see the decoder's note).
	TiltBack int32
	// CutoutAngle, BrakingCurrent and Pid are Gotway/SV frame 0xFF's
	// Alexovik-firmware fields: cutout angle in degrees, braking current in
	// A*100, and the three raw PID gain bytes (P, I, D).
	CutoutAngle    int32
	BrakingCurrent int32
	Pid            [3]int32

	WheelType    Type
	Model        string
	Version      string
	SerialNumber string
	ModeStr      string

	Bms1 *SmartBms
	Bms2 *SmartBms

	Alert string
	News  string
	Error string
}

// Clone returns a shallow copy of s suitable as the basis for copy-modify
// updates; Bms1/Bms2 pointers are left aliased since SmartBms values
// themselves are only ever replaced wholesale, never mutated in place.
func (s State) Clone() State {
	return s
}

// SmartBms is one battery pack's state as reported by a dual-BMS-capable
// wheel. Wheels with a single pack populate only State.Bms1.
type SmartBms struct {
	Voltage uint32
	Current int32

	// CellVoltages holds up to 48 cells, each in volts (as a fixed-point
	// milli-volt integer: 1V = 1000). CellNum is how many of the leading
	// entries are populated/detected.
	CellVoltages [48]uint32
	CellNum      int

	MinCellVoltage      uint32
	MinCellVoltageIndex int // 1-based
	MaxCellVoltage      uint32
	MaxCellVoltageIndex int // 1-based
	AvgCellVoltage      uint32
	CellDiff            uint32

	Temperatures [6]int32

	RemainingCapacity uint32
	FactoryCapacity   uint32
	FullCycles        uint32
	ChargeCount       uint32

	ManufactureDate string
	BalanceBitmap   uint32
	StatusWord      uint32
	Soc             int32
}

// Recompute derives MinCellVoltage/MaxCellVoltage/AvgCellVoltage/CellDiff
// and their 1-based indices from CellVoltages[:CellNum]. Decoders call this
// after writing new cell-voltage data into a SmartBms.
func (b *SmartBms) Recompute() {
	if b.CellNum <= 0 {
		return
	}
	var sum uint64
	minV, maxV := b.CellVoltages[0], b.CellVoltages[0]
	minI, maxI := 1, 1
	for i := 0; i < b.CellNum; i++ {
		v := b.CellVoltages[i]
		sum += uint64(v)
		if v < minV {
			minV = v
			minI = i + 1
		}
		if v > maxV {
			maxV = v
			maxI = i + 1
		}
	}
	b.MinCellVoltage = minV
	b.MinCellVoltageIndex = minI
	b.MaxCellVoltage = maxV
	b.MaxCellVoltageIndex = maxI
	b.AvgCellVoltage = uint32(sum / uint64(b.CellNum))
	b.CellDiff = maxV - minV
}
