// Package v1 decodes the InMotion V1 ("CAN-over-air") wire protocol: an
// escaped AA-AA-framed envelope wrapping a 16-byte CAN record, with model
// detection driven by two bytes of the slow-info message and a 250ms
// fast-info keep-alive.
package v1

import (
	"sync"

	"github.com/nathan234/wheellog-decoders/internal/unpacker"
	"github.com/nathan234/wheellog-decoders/pkg/codec"
	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

const keepAliveIntervalMillis = 250

// Message IDs, matched after little-endian decoding of the CAN id field.
const (
	idFastInfo     uint32 = 0x0F550113
	idSlowInfo     uint32 = 0x0F550114
	idRideMode     uint32 = 0x0F550115
	idRemote       uint32 = 0x0F550116
	idCalibration  uint32 = 0x0F550119
	idPinCode      uint32 = 0x0F550307
	idLight        uint32 = 0x0F55010D
	idHandleButton uint32 = 0x0F55012E
	idPlaySound    uint32 = 0x0F550609
	idSpeakerVol   uint32 = 0x0F55060A
	idAlert        uint32 = 0x0F780101
)

// Decoder implements wheel.Decoder for InMotion V1 wheels.
type Decoder struct {
	mu sync.Mutex

	asm *unpacker.InMotionV1Unpacker

	model   string
	version string
	ready   bool
}

// New returns a Decoder that has not yet seen a slow-info message.
func New() *Decoder {
	return &Decoder{asm: unpacker.NewInMotionV1Unpacker()}
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
	d.model, d.version, d.ready = "", "", false
}

// InitCommands implements wheel.Decoder.
func (d *Decoder) InitCommands() []wheel.Command { return nil }

// KeepAliveCommand implements wheel.Decoder: a fast-info request every
// 250ms.
func (d *Decoder) KeepAliveCommand() (wheel.Command, bool) {
	return wheel.RawCommand(canFrame(idFastInfo, 5, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})), true
}

// KeepAliveIntervalMillis implements wheel.Decoder.
func (d *Decoder) KeepAliveIntervalMillis() int64 { return keepAliveIntervalMillis }

// BuildCommand implements wheel.Decoder. InMotion V1's documented outbound
// surface in this module's scope is the keep-alive frame already built by
// KeepAliveCommand.
func (d *Decoder) BuildCommand(wheel.SemanticCommand, wheel.DecoderConfig) []wheel.Command {
	return nil
}

func canFrame(id uint32, channel byte, data []byte) []byte {
	payload := make([]byte, 16)
	payload[0] = byte(id)
	payload[1] = byte(id >> 8)
	payload[2] = byte(id >> 16)
	payload[3] = byte(id >> 24)
	copy(payload[4:12], data)
	payload[12] = byte(len(data))
	payload[13] = channel
	payload[14] = 0
	payload[15] = 0

	var sum byte
	for _, b := range payload {
		sum += b
	}

	escaped := make([]byte, 0, len(payload)*2+4)
	escaped = append(escaped, 0xAA, 0xAA)
	for _, b := range payload {
		if b == 0xAA || b == 0x55 || b == 0xA5 {
			escaped = append(escaped, 0xA5, b)
		} else {
			escaped = append(escaped, b)
		}
	}
	escaped = append(escaped, sum, 0x55, 0x55)
	return escaped
}

// Decode implements wheel.Decoder.
func (d *Decoder) Decode(data []byte, prev wheel.State, cfg wheel.DecoderConfig) (wheel.DecodedData, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := prev
	changed := false
	var news string

	for _, b := range data {
		if !d.asm.Feed(b) {
			continue
		}
		decoded := append([]byte(nil), d.asm.Frame()...)
		d.asm.Reset()

		next, gotNews, ok := d.decodePayload(decoded, state)
		if !ok {
			continue
		}
		state = next
		changed = true
		if gotNews != "" {
			news = gotNews
		}
	}

	if !changed {
		return wheel.DecodedData{}, false
	}
	state.WheelType = wheel.TypeInMotionV1
	state.Model = d.model
	state.Version = d.version
	return wheel.DecodedData{NewState: state, HasNewData: true, News: news}, true
}

// decodePayload verifies the checksum, parses the 16-byte CAN record, and
// dispatches on message id.
func (d *Decoder) decodePayload(decoded []byte, prev wheel.State) (wheel.State, string, bool) {
	if len(decoded) < 17 {
		return prev, "", false
	}
	checksum := decoded[len(decoded)-1]
	payload := decoded[:len(decoded)-1]

	var sum byte
	for _, b := range payload {
		sum += b
	}
	if sum != checksum {
		return prev, "", false
	}
	if len(payload) < 16 {
		return prev, "", false
	}

	id := codec.LeU32(payload, 0)
	canData := payload[4:12]
	state := prev
	news := ""

	switch id {
	case idSlowInfo:
		if len(canData) >= 4 {
			modelID := string(canData[0:2])
			d.model = modelFamily(modelID)
			d.ready = true
		}

	case idFastInfo:
		rawSpeed := float64(codec.LeI16(canData, 0))
		state.Speed = int32(codec.RoundHalfAwayFromZero(rawSpeed / speedDivisor(d.model) * 100))
		state.Voltage = uint32(codec.LeU16(canData, 2))
		state.Current = int32(codec.LeI16(canData, 4))
		state.BatteryLevel = int32(canData[6])

	case idAlert:
		news = "alert"

	case idPinCode, idRideMode, idRemote, idCalibration, idLight, idHandleButton, idPlaySound, idSpeakerVol:
		// Recognized but not surfaced on the snapshot in this module's scope.

	default:
		return prev, "", false
	}

	return state, news, true
}

func modelFamily(id string) string {
	switch id {
	case "R1", "R0":
		return "R1/R0"
	case "V5":
		return "V5"
	case "V8":
		return "V8"
	case "V1":
		return "V10"
	case "L6":
		return "L6"
	default:
		return "R-series"
	}
}

func speedDivisor(model string) float64 {
	switch model {
	case "R1T":
		return 3810
	case "R1/R0":
		return 1000
	default:
		return 3812
	}
}
