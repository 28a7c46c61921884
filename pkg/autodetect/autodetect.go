// Package autodetect discriminates Gotway from Veteran by the first bytes
// of a run and delegates every subsequent call to whichever decoder it
// latched onto. It does not attempt to discriminate any other protocol —
// the spec treats deeper auto-detection as out of scope.
package autodetect

import (
	"sync"

	"github.com/nathan234/wheellog-decoders/pkg/gotway"
	"github.com/nathan234/wheellog-decoders/pkg/veteran"
	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

var veteranPrefix = []byte{0xDC, 0x5A, 0x5C}
var gotwayPrefix = []byte{0x55, 0xAA}

// Decoder implements wheel.Decoder by delegating to gotway.Decoder or
// veteran.Decoder once the wire protocol is recognized.
type Decoder struct {
	mu sync.Mutex

	clk wheel.Clock

	delegate wheel.Decoder
	latched  wheel.Type
}

// New returns a Decoder with no delegate latched yet.
func New() *Decoder {
	return &Decoder{clk: wheel.SystemClock{}}
}

// IsReady implements wheel.Decoder.
func (d *Decoder) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delegate != nil && d.delegate.IsReady()
}

// Reset implements wheel.Decoder. Clears the latched protocol so the next
// byte run starts detection over.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.delegate != nil {
		d.delegate.Reset()
	}
	d.delegate = nil
	d.latched = wheel.TypeUnknown
}

// InitCommands implements wheel.Decoder.
func (d *Decoder) InitCommands() []wheel.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.delegate == nil {
		return nil
	}
	return d.delegate.InitCommands()
}

// KeepAliveCommand implements wheel.Decoder.
func (d *Decoder) KeepAliveCommand() (wheel.Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.delegate == nil {
		return wheel.Command{}, false
	}
	return d.delegate.KeepAliveCommand()
}

// KeepAliveIntervalMillis implements wheel.Decoder.
func (d *Decoder) KeepAliveIntervalMillis() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.delegate == nil {
		return 0
	}
	return d.delegate.KeepAliveIntervalMillis()
}

// BuildCommand implements wheel.Decoder.
func (d *Decoder) BuildCommand(cmd wheel.SemanticCommand, cfg wheel.DecoderConfig) []wheel.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.delegate == nil {
		return nil
	}
	return d.delegate.BuildCommand(cmd, cfg)
}

// Decode implements wheel.Decoder.
func (d *Decoder) Decode(data []byte, prev wheel.State, cfg wheel.DecoderConfig) (wheel.DecodedData, bool) {
	d.mu.Lock()
	if d.delegate == nil {
		d.latch(data)
	}
	delegate := d.delegate
	d.mu.Unlock()

	if delegate == nil {
		return wheel.DecodedData{}, false
	}
	return delegate.Decode(data, prev, cfg)
}

func (d *Decoder) latch(data []byte) {
	if hasPrefix(data, veteranPrefix) {
		d.delegate = veteran.New(d.clk)
		d.latched = wheel.TypeVeteran
	} else if hasPrefix(data, gotwayPrefix) {
		d.delegate = gotway.New()
		d.latched = wheel.TypeGotway
	}
}

func hasPrefix(data, prefix []byte) bool {
	if len(data) < len(prefix) {
		return false
	}
	for i, b := range prefix {
		if data[i] != b {
			return false
		}
	}
	return true
}
