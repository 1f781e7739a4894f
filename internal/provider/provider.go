// Package provider selects an av.Engine implementation by name.
package provider

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
	"github.com/thesyncim/av/libav"
	"github.com/thesyncim/av/pureav"
)

// Provider identifies an engine implementation.
type Provider uint8

const (
	ProviderAuto   Provider = iota // libav when loadable, pureav otherwise
	ProviderLibav                  // native libav through libmedia_av
	ProviderPureav                 // Go containers and raw codecs
	providerCount
)

// Features is a bitmask of engine capabilities.
type Features uint32

const (
	FeatureCompressedCodecs Features = 1 << iota // decode/encode h264, vp8, aac...
	FeatureFormatConversion                      // pixel format conversion in the scaler
	FeatureNative                                // needs a native library at run time
)

// Has reports whether all of feature are set.
func (f Features) Has(feature Features) bool { return f&feature == feature }

type providerMeta struct {
	Name     string
	Features Features
}

// Static metadata table indexed by Provider.
var providerInfo = [providerCount]providerMeta{
	ProviderAuto:   {"auto", 0},
	ProviderLibav:  {"libav", FeatureCompressedCodecs | FeatureFormatConversion | FeatureNative},
	ProviderPureav: {"pureav", 0},
}

// ErrUnknownProvider is returned by Parse for names outside the table.
var ErrUnknownProvider = errors.New("provider: unknown engine")

func (p Provider) String() string {
	if p >= providerCount {
		return "unknown"
	}
	return providerInfo[p].Name
}

// Features returns the provider's capabilities.
func (p Provider) Features() Features {
	if p >= providerCount {
		return 0
	}
	return providerInfo[p].Features
}

// Available reports whether the provider can be opened on this system.
func (p Provider) Available() bool {
	switch p {
	case ProviderAuto, ProviderPureav:
		return true
	case ProviderLibav:
		return libav.Available()
	default:
		return false
	}
}

// Parse returns the provider named name, case insensitively. An empty name
// is ProviderAuto.
func Parse(name string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ProviderAuto, nil
	}
	for p := ProviderAuto; p < providerCount; p++ {
		if providerInfo[p].Name == name {
			return p, nil
		}
	}
	return ProviderAuto, errors.Wrapf(ErrUnknownProvider, "%q", name)
}

// Open creates the engine for p. ProviderAuto falls back to pureav when
// libmedia_av cannot be loaded.
func Open(p Provider, log *slog.Logger) (av.Engine, error) {
	if log == nil {
		log = av.Logger()
	}
	switch p {
	case ProviderLibav:
		eng, err := libav.New(libav.WithLogger(log))
		if err != nil {
			return nil, errors.Wrap(err, "open libav engine")
		}
		return eng, nil
	case ProviderPureav:
		return pureav.New(pureav.WithLogger(log)), nil
	case ProviderAuto:
		eng, err := libav.New(libav.WithLogger(log))
		if err == nil {
			return eng, nil
		}
		log.Info("libav unavailable, using pureav", "reason", err)
		return pureav.New(pureav.WithLogger(log)), nil
	default:
		return nil, errors.Wrapf(ErrUnknownProvider, "provider %d", p)
	}
}

// OpenByName is Parse followed by Open.
func OpenByName(name string, log *slog.Logger) (av.Engine, error) {
	p, err := Parse(name)
	if err != nil {
		return nil, err
	}
	return Open(p, log)
}
