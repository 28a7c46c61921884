// Package v2 decodes the InMotion V2 wire protocol: an escaped AA-AA-framed
// envelope wrapping a command-keyed telemetry/settings body, a five-stage
// init sequence, and a 25ms keep-alive that cycles through the connection
// state machine.
package v2

import (
	"fmt"
	"sync"
	"time"

	"github.com/nathan234/wheellog-decoders/internal/unpacker"
	"github.com/nathan234/wheellog-decoders/pkg/codec"
	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

const keepAliveIntervalMillis = 25

type connState int

const (
	stateInitial connState = iota
	stateAwaitingSerial
	stateAwaitingVersions
	stateStreaming
)

const (
	cmdMainVersion     byte = 0x01
	cmdMainInfo        byte = 0x02
	cmdRealTime        byte = 0x04
	cmdBatteryRealTime byte = 0x05
	cmdTotalStats      byte = 0x11
	cmdSettings        byte = 0x20
	cmdControl         byte = 0x60
	cmdSettingsResp    byte = 0xA0
)

// Model identifies an InMotion V2 (series, type) pair.
type Model struct {
	Series, Type int
	Name         string
	CellCount    int
}

var models = []Model{
	{6, 1, "V11", 24},
	{6, 2, "V11Y", 24},
	{7, 1, "V12HS", 32},
	{7, 2, "V12HT", 32},
	{7, 3, "V12PRO", 32},
	{8, 1, "V13", 30},
	{8, 2, "V13PRO", 30},
	{9, 1, "V14g", 32},
	{9, 2, "V14s", 32},
	{11, 1, "V12S", 32},
	{12, 1, "V9", 20},
}

func lookupModel(series, typ int) (Model, bool) {
	for _, m := range models {
		if m.Series == series && m.Type == typ {
			return m, true
		}
	}
	return Model{}, false
}

// Decoder implements wheel.Decoder for InMotion V2 wheels.
type Decoder struct {
	mu sync.Mutex

	asm *unpacker.InMotionV2Unpacker

	state  connState
	model  Model
	serial string
	ver    string
}

// New returns a Decoder with no model detected yet.
func New() *Decoder {
	return &Decoder{asm: unpacker.NewInMotionV2Unpacker(), state: stateInitial}
}

// IsReady implements wheel.Decoder.
func (d *Decoder) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == stateStreaming
}

// Reset implements wheel.Decoder.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.asm.Reset()
	d.state = stateInitial
	d.model = Model{}
	d.serial = ""
	d.ver = ""
}

func v2Frame(flags, command byte, data []byte) []byte {
	body := append([]byte{flags, byte(len(data) + 1), command}, data...)
	var checksum byte
	for _, b := range body {
		checksum ^= b
	}
	body = append(body, checksum)

	out := []byte{0xAA, 0xAA}
	for _, b := range body {
		if b == 0xAA || b == 0xA5 {
			out = append(out, 0xA5, b)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// InitCommands implements wheel.Decoder: car-type, serial, versions,
// current-settings, real-time, staged 100ms apart.
func (d *Decoder) InitCommands() []wheel.Command {
	return []wheel.Command{
		v2Cmd(v2Frame(0x11, cmdMainInfo, []byte{0x01}), 0),
		v2Cmd(v2Frame(0x11, cmdMainInfo, []byte{0x02}), 100),
		v2Cmd(v2Frame(0x11, cmdMainInfo, []byte{0x06}), 100),
		v2Cmd(v2Frame(0x11, cmdSettings, nil), 100),
		v2Cmd(v2Frame(0x11, cmdRealTime, nil), 100),
	}
}

func v2Cmd(raw []byte, delayMS int) wheel.Command {
	return wheel.DelayedCommand(raw, time.Duration(delayMS)*time.Millisecond)
}

// KeepAliveCommand implements wheel.Decoder: cycles serial/version/real-time
// requests depending on what the connection state machine still needs.
func (d *Decoder) KeepAliveCommand() (wheel.Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case stateInitial:
		return wheel.RawCommand(v2Frame(0x11, cmdMainInfo, []byte{0x01})), true
	case stateAwaitingSerial:
		return wheel.RawCommand(v2Frame(0x14, cmdMainInfo, []byte{0x02})), true
	case stateAwaitingVersions:
		return wheel.RawCommand(v2Frame(0x14, cmdMainInfo, []byte{0x06})), true
	default:
		return wheel.RawCommand(v2Frame(0x14, cmdRealTime, nil)), true
	}
}

// KeepAliveIntervalMillis implements wheel.Decoder.
func (d *Decoder) KeepAliveIntervalMillis() int64 { return keepAliveIntervalMillis }

// BuildCommand implements wheel.Decoder.
func (d *Decoder) BuildCommand(wheel.SemanticCommand, wheel.DecoderConfig) []wheel.Command {
	return nil
}

// Decode implements wheel.Decoder.
func (d *Decoder) Decode(data []byte, prev wheel.State, cfg wheel.DecoderConfig) (wheel.DecodedData, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := prev
	changed := false

	for _, b := range data {
		if !d.asm.Feed(b) {
			continue
		}
		decoded := append([]byte(nil), d.asm.Frame()...)
		d.asm.Reset()

		next, ok := d.decodeBody(decoded, state)
		if !ok {
			continue
		}
		state = next
		changed = true
	}

	if !changed {
		return wheel.DecodedData{}, false
	}
	state.WheelType = wheel.TypeInMotionV2
	state.Model = d.model.Name
	state.SerialNumber = d.serial
	state.Version = d.ver
	return wheel.DecodedData{NewState: state, HasNewData: true}, true
}

func (d *Decoder) decodeBody(decoded []byte, prev wheel.State) (wheel.State, bool) {
	if len(decoded) < 4 {
		return prev, false
	}
	checksum := decoded[len(decoded)-1]
	body := decoded[:len(decoded)-1]

	var want byte
	for _, b := range body {
		want ^= b
	}
	if want != checksum {
		return prev, false
	}

	command := body[2]
	payload := body[3:]
	state := prev

	switch command {
	case cmdMainInfo:
		if len(payload) == 0 {
			return prev, false
		}
		switch payload[0] {
		case 0x01:
			if len(payload) >= 3 {
				d.model, _ = lookupModel(int(payload[1]), int(payload[2]))
				if d.state == stateInitial {
					d.state = stateAwaitingSerial
				}
			}
		case 0x02:
			d.serial = codec.Hex(payload[1:])
			if d.state == stateAwaitingSerial {
				d.state = stateAwaitingVersions
			}
		case 0x06:
			d.ver = codec.Hex(payload[1:])
			if d.state == stateAwaitingVersions {
				d.state = stateStreaming
			}
		}
		return state, false

	case cmdRealTime:
		if len(payload) < 6 {
			return prev, false
		}
		state.Voltage = uint32(codec.LeU16(payload, 0))
		state.Temperature = (int32(payload[2]) + 80 - 256) * 100
		state.BatteryLevel = int32(payload[3])
		state.Speed = int32(codec.LeI16(payload, 4))
		return state, true

	case cmdBatteryRealTime:
		if len(payload) < 4 {
			return prev, false
		}
		state.Current = int32(codec.LeI16(payload, 0))
		state.BatteryLevel = int32(payload[2])
		return state, true

	case cmdTotalStats:
		if len(payload) >= 4 {
			state.TotalDistance = int64(codec.LeU32(payload, 0))
		}
		return state, true

	case cmdSettings, cmdSettingsResp:
		state = parseSettings(state, d.model.Name, payload)
		return state, true

	case cmdControl:
		return state, false

	default:
		return prev, false
	}
}

// settingsLayout gives the byte offsets a model family's 0x20/0xA0 settings
// payload uses for the fields this decoder surfaces. maxSpeedOff and
// pedalTiltOff are the low byte of a little-endian 16-bit field;
// rideModeByte, sensitivityByte, speakerVolOff and lightBrightOff are single
// bytes, -1 where the family doesn't carry that field.
type settingsLayout struct {
	maxSpeedOff, pedalTiltOff                                    int
	rideModeByte, sensitivityByte, speakerVolOff, lightBrightOff int
}

var settingsLayouts = map[string]settingsLayout{
	"V11":    {1, 3, 5, 6, 8, 18},
	"V9":     {1, 9, 11, 12, -1, -1},
	"V11Y":   {1, 9, 11, 12, -1, -1},
	"V13":    {1, 9, 11, 12, -1, -1},
	"V13PRO": {1, 9, 11, 12, -1, -1},
	"V14g":   {1, 9, 11, 12, -1, -1},
	"V14s":   {1, 9, 11, 12, -1, -1},
	"V12HS":  {9, 15, 19, 20, 22, -1},
	"V12HT":  {9, 15, 19, 20, 22, -1},
	"V12PRO": {9, 15, 19, 20, 22, -1},
	"V12S":   {9, 15, 19, 20, 22, -1},
}

// parseSettings reads the per-model-family settings layout (offsets/bit
// positions differ across V11, V13/V14, V11Y/V9, and V12 families) and
// returns state with MaxSpeed, PitchAngle, and a compact ModeStr filled in.
func parseSettings(state wheel.State, modelName string, payload []byte) wheel.State {
	layout, ok := settingsLayouts[modelName]
	if !ok {
		return state
	}
	if layout.maxSpeedOff+1 < len(payload) {
		state.MaxSpeed = int32(codec.LeU16(payload, layout.maxSpeedOff))
	}
	if layout.pedalTiltOff+1 < len(payload) {
		state.PitchAngle = int32(codec.LeI16(payload, layout.pedalTiltOff))
	}
	ride, sens, vol, bright := -1, -1, -1, -1
	if layout.rideModeByte >= 0 && layout.rideModeByte < len(payload) {
		ride = int(payload[layout.rideModeByte])
	}
	if layout.sensitivityByte >= 0 && layout.sensitivityByte < len(payload) {
		sens = int(payload[layout.sensitivityByte])
	}
	if layout.speakerVolOff >= 0 && layout.speakerVolOff < len(payload) {
		vol = int(payload[layout.speakerVolOff])
	}
	if layout.lightBrightOff >= 0 && layout.lightBrightOff < len(payload) {
		bright = int(payload[layout.lightBrightOff])
	}
	state.ModeStr = formatSettingsSummary(ride, sens, vol, bright)
	return state
}

func formatSettingsSummary(ride, sensitivity, speakerVolume, lightBrightness int) string {
	s := fmt.Sprintf("ride=%d sens=%d", ride, sensitivity)
	if speakerVolume >= 0 {
		s += fmt.Sprintf(" vol=%d", speakerVolume)
	}
	if lightBrightness >= 0 {
		s += fmt.Sprintf(" bright=%d", lightBrightness)
	}
	return s
}
