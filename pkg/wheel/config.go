package wheel

// BatteryCurvePoint is one (voltage*100, percent) anchor of a custom battery
// curve carried by DecoderConfig.CustomBatteryCurve. No decoder in this
// module reads that field.
type BatteryCurvePoint struct {
	VoltageCenti int32 // V * 100
	Percent      int32
}

// DecoderConfig carries the caller-supplied options every decoder
// constructor accepts. It is always caller-constructed and never read from
// the environment or persisted by the library — environment/.env
// configuration belongs to the surrounding cmd/ binaries only.
type DecoderConfig struct {
	// GotwayNegative is -1, 0, or +1. It is not a sign: 0 means "publish the
	// absolute value", and -1/+1 each multiply the raw (already-oriented)
	// reading. Used by both the Gotway and Veteran decoders.
	GotwayNegative int

	// GotwayVoltage selects the Gotway wheel-class voltage multiplier,
	// 0..6 (see the voltageScale table in package gotway).
	GotwayVoltage int

	// UseRatio applies the Gotway 0.875 gear-ratio correction to speed and
	// distance fields.
	UseRatio bool

	// UseCustomPercents selects the Gotway "custom" three-segment battery
	// curve instead of the two-point standard curve.
	UseCustomPercents bool

	// HwPwmEnabled selects hwPwm as the Veteran PWM source directly,
	// instead of deriving it from speed/voltage/rotation parameters.
	HwPwmEnabled bool

	// RotationSpeed, RotationVoltage, PowerFactor parameterize the Veteran
	// PWM-from-speed computation when HwPwmEnabled is false.
	RotationSpeed   float64
	RotationVoltage float64
	PowerFactor     float64

	// CustomBatteryCurve holds battery-curve points sorted ascending by
	// VoltageCenti. No decoder in this module reads it; each uses its
	// built-in curve.
	CustomBatteryCurve []BatteryCurvePoint

	// Password holds a connection passcode. No decoder in this module reads
	// it; none sends a pin-code message.
	Password string

	// BmsReadingMode is accepted for forward compatibility with the
	// Ninebot-Z BMS1/BMS2 connection states, but pkg/ninebotz doesn't drive
	// them (see its connState doc) — the field currently has no effect.
	BmsReadingMode bool

	// NinebotVariant selects among the Ninebot wire-compatible sibling
	// models (DEFAULT/S2/MINI), which differ in speed scale/offset.
	NinebotVariant NinebotVariant
}

// NinebotVariant distinguishes the Ninebot-compatible models that share one
// wire format and state machine but differ in a few field scales.
type NinebotVariant int

const (
	NinebotDefault NinebotVariant = iota
	NinebotS2
	NinebotMini
)

// DefaultDecoderConfig returns the zero-ish configuration most decoders are
// exercised with in tests: no polarity inversion (absolute-value speed),
// standard Gotway voltage class, no gear ratio correction.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		GotwayNegative:  0,
		GotwayVoltage:   0,
		RotationSpeed:   1.0,
		RotationVoltage: 1.0,
		PowerFactor:     1.0,
	}
}
