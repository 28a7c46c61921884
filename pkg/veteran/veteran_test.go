package veteran

import (
	"testing"

	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMillis() int64 { return c.ms }

func buildFrame(voltage uint16, mVer int) []byte {
	f := make([]byte, 36)
	f[0], f[1], f[2] = 0xDC, 0x5A, 0x5C
	f[3] = byte(len(f) - 4)
	f[4] = byte(voltage >> 8)
	f[5] = byte(voltage)
	f[22] = 0x00
	f[23] = 0x00
	f[30] = 0x07
	verWord := mVer*1000 + 2*100 + 3
	f[28] = byte(verWord >> 8)
	f[29] = byte(verWord)
	return f
}

func TestDecodeNoCRCFrame(t *testing.T) {
	d := New(&fakeClock{ms: 1000})
	frame := buildFrame(10000, 0)
	out, ok := d.Decode(frame, wheel.State{}, wheel.DefaultDecoderConfig())
	if !ok {
		t.Fatalf("expected a decoded frame")
	}
	if out.NewState.Voltage != 10000 {
		t.Errorf("Voltage = %d, want 10000", out.NewState.Voltage)
	}
	if out.NewState.Model != "Sherman" {
		t.Errorf("Model = %q, want Sherman", out.NewState.Model)
	}
}

func TestStaleFrameGuardResetsUnpacker(t *testing.T) {
	clk := &fakeClock{ms: 0}
	d := New(clk)

	frame := buildFrame(10000, 0)
	half := frame[:10]
	rest := frame[10:]

	d.Decode(half, wheel.State{}, wheel.DefaultDecoderConfig())

	clk.ms += staleFrameMillis + 1
	d.Decode(rest, wheel.State{}, wheel.DefaultDecoderConfig())

	// The stale guard should have discarded the partial buffer, so feeding
	// only the second half must not complete a frame.
	if len(d.asm.Frame()) == len(frame) {
		t.Errorf("expected stale-frame guard to drop the partial buffer")
	}
}

func TestBatteryClassThresholds(t *testing.T) {
	if p := batteryPercent(0, 7000); p != 0 {
		t.Errorf("100V-class below floor = %d, want 0", p)
	}
	if p := batteryPercent(0, 10500); p != 100 {
		t.Errorf("100V-class above ceiling = %d, want 100", p)
	}
}

func TestBatteryPercentAboveKneeScenario(t *testing.T) {
	if p := batteryPercent(0, 9686); p != 90 {
		t.Errorf("100V-class battery percent at 96.86V = %d, want 90", p)
	}
}
