package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/av/libav"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want Provider
	}{
		{"", ProviderAuto},
		{"auto", ProviderAuto},
		{"LibAV", ProviderLibav},
		{" pureav ", ProviderPureav},
	}
	for _, tt := range tests {
		got, err := Parse(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
	_, err := Parse("ffmpeg")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestProviderMetadata(t *testing.T) {
	assert.Equal(t, "libav", ProviderLibav.String())
	assert.Equal(t, "unknown", Provider(42).String())
	assert.True(t, ProviderLibav.Features().Has(FeatureNative|FeatureCompressedCodecs))
	assert.False(t, ProviderPureav.Features().Has(FeatureCompressedCodecs))
	assert.True(t, ProviderPureav.Available())
	assert.Equal(t, libav.Available(), ProviderLibav.Available())
	assert.False(t, Provider(42).Available())
}

func TestOpen(t *testing.T) {
	eng, err := Open(ProviderPureav, nil)
	require.NoError(t, err)
	assert.Equal(t, "pureav", eng.Name())

	eng, err = OpenByName("auto", nil)
	require.NoError(t, err)
	if libav.Available() {
		assert.Equal(t, "libav", eng.Name())
	} else {
		assert.Equal(t, "pureav", eng.Name())
		_, err = Open(ProviderLibav, nil)
		assert.ErrorIs(t, err, libav.ErrNotAvailable)
	}

	_, err = OpenByName("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)
	_, err = Open(Provider(9), nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
