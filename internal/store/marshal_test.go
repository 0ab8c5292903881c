package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qcmask/internal/qc"
)

func TestNanos_RoundTrip(t *testing.T) {
	local := time.Date(2024, 3, 1, 1, 0, 0, 123, time.FixedZone("CET", 3600))

	got := fromNanos(nanos(local))
	assert.True(t, got.Equal(local))
	assert.Equal(t, time.UTC, got.Location())
}

func TestMarshalChannels_Canonical(t *testing.T) {
	data, err := marshalChannels([]qc.Channel{bhz})
	require.NoError(t, err)
	assert.Equal(t, `[{"code":"BHZ","station":"ASAR"}]`, data)

	back, err := unmarshalChannels(data)
	require.NoError(t, err)
	assert.Equal(t, []qc.Channel{bhz}, back)
}

func TestMarshalChannels_Empty(t *testing.T) {
	data, err := marshalChannels(nil)
	require.NoError(t, err)
	assert.Equal(t, `[]`, data)
}

func TestMarshalWaveforms_RoundTrip(t *testing.T) {
	refs := []qc.WaveformRef{{
		ChannelName:  "ASAR.BHZ",
		Start:        at(0).In(time.FixedZone("X", -7200)),
		End:          at(5),
		SampleRateHz: 39.9,
		StartSample:  10,
		EndSample:    11980,
		RecordID:     42,
	}}

	data, err := marshalWaveforms(refs)
	require.NoError(t, err)
	assert.NotContains(t, data, "\n")
	assert.Contains(t, data, `"start":"2024-03-01T00:00:00Z"`)

	back, err := unmarshalWaveforms(data)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.True(t, back[0].Start.Equal(refs[0].Start))
	assert.Equal(t, 39.9, back[0].SampleRateHz)
	assert.Equal(t, int64(42), back[0].RecordID)
}

func TestUnmarshalWaveforms_Empty(t *testing.T) {
	for _, data := range []string{"", "[]", "null"} {
		refs, err := unmarshalWaveforms(data)
		require.NoError(t, err)
		assert.Nil(t, refs)
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	_, err := unmarshalChannels("{")
	assert.Error(t, err)
	_, err = unmarshalWaveforms("{")
	assert.Error(t, err)
}
