// Package factory maps a wheel.Type to a constructed wheel.Decoder. It is
// the single place that knows about every manufacturer package, so callers
// (the gateway, the bench tool, application code) only need a wheel.Type
// and a wheel.Clock.
package factory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nathan234/wheellog-decoders/pkg/autodetect"
	"github.com/nathan234/wheellog-decoders/pkg/gotway"
	"github.com/nathan234/wheellog-decoders/pkg/inmotion/v1"
	"github.com/nathan234/wheellog-decoders/pkg/inmotion/v2"
	"github.com/nathan234/wheellog-decoders/pkg/kingsong"
	"github.com/nathan234/wheellog-decoders/pkg/ninebot"
	"github.com/nathan234/wheellog-decoders/pkg/ninebotz"
	"github.com/nathan234/wheellog-decoders/pkg/veteran"
	"github.com/nathan234/wheellog-decoders/pkg/wheel"
)

// builder constructs a fresh Decoder instance for one Type.
type builder func(wheel.Clock) wheel.Decoder

var registry = map[wheel.Type]builder{
	wheel.TypeGotway: func(wheel.Clock) wheel.Decoder { return gotway.New() },
	wheel.TypeVeteran: func(clk wheel.Clock) wheel.Decoder {
		return veteran.New(clk)
	},
	wheel.TypeKingsong:    func(wheel.Clock) wheel.Decoder { return kingsong.New() },
	wheel.TypeNinebot:     func(wheel.Clock) wheel.Decoder { return ninebot.New() },
	wheel.TypeNinebotZ:    func(wheel.Clock) wheel.Decoder { return ninebotz.New() },
	wheel.TypeInMotionV1:  func(wheel.Clock) wheel.Decoder { return v1.New() },
	wheel.TypeInMotionV2:  func(wheel.Clock) wheel.Decoder { return v2.New() },
	wheel.TypeAutoDetect:  func(wheel.Clock) wheel.Decoder { return autodetect.New() },
}

// NewDecoder constructs a fresh Decoder for t. clk is only consulted by
// decoders that need wall-clock timing (currently Veteran); pass
// wheel.SystemClock{} outside of tests.
func NewDecoder(t wheel.Type, clk wheel.Clock) (wheel.Decoder, error) {
	b, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("factory: unsupported wheel type %q", t)
	}
	return b(clk), nil
}

// SupportedTypes returns every Type the factory can construct, sorted by
// their string name for stable output (gateway listings, CLI help text).
func SupportedTypes() []wheel.Type {
	types := make([]wheel.Type, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].String() < types[j].String() })
	return types
}

// CachingFactory reuses one Decoder instance per Type rather than building a
// new one on every call; this matters because a manufacturer decoder's
// internal state (unpacker buffer, identity, gamma key, retry counters) is
// exactly the per-connection state a caller needs to keep across repeated
// Decode calls, and building one per call would throw that away.
type CachingFactory struct {
	clk wheel.Clock

	mu    sync.Mutex
	cache map[wheel.Type]wheel.Decoder
}

// NewCachingFactory returns a CachingFactory backed by clk.
func NewCachingFactory(clk wheel.Clock) *CachingFactory {
	if clk == nil {
		clk = wheel.SystemClock{}
	}
	return &CachingFactory{clk: clk, cache: make(map[wheel.Type]wheel.Decoder)}
}

// Get returns the cached Decoder for t, constructing and caching one on
// first use.
func (f *CachingFactory) Get(t wheel.Type) (wheel.Decoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d, ok := f.cache[t]; ok {
		return d, nil
	}
	d, err := NewDecoder(t, f.clk)
	if err != nil {
		return nil, err
	}
	f.cache[t] = d
	return d, nil
}

// Forget drops the cached Decoder for t, if any, so the next Get builds a
// fresh one (used when a caller wants to fully discard connection state
// instead of calling Decoder.Reset).
func (f *CachingFactory) Forget(t wheel.Type) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cache, t)
}

// ClearCache resets every cached Decoder and drops it from the cache, so the
// next Get for any Type builds a fresh instance. Unlike Forget, which just
// discards a cached instance, this calls Decoder.Reset on each one first so
// a decoder with pending outbound work (or a caller holding an older
// reference to it) still observes a clean state before it's let go.
func (f *CachingFactory) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for t, d := range f.cache {
		d.Reset()
		delete(f.cache, t)
	}
}
