package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqSetGainLeavesNamedPreset(t *testing.T) {
	for _, name := range []PresetName{PresetFlat, PresetBassBoost, PresetVocal, PresetTreble} {
		var eq EqSettings
		require.NoError(t, eq.ApplyPreset(name))
		require.NoError(t, eq.SetGain(1000, 3))
		assert.Equal(t, PresetCustom, eq.Preset, "preset %s", name)
		assert.Equal(t, 3.0, eq.Gain(1000))
	}
}

func TestEqApplyPresetOverwritesAllGains(t *testing.T) {
	eq := EqSettings{Preset: PresetCustom, Gains: EqGains{11, 11, 11, 11, 11}}
	require.NoError(t, eq.ApplyPreset(PresetBassBoost))

	assert.Equal(t, PresetBassBoost, eq.Preset)
	assert.Equal(t, EqGains{8, 5, 0, 0, 2}, eq.Gains)

	require.NoError(t, eq.ApplyPreset(PresetTreble))
	assert.Equal(t, EqGains{-2, 0, 2, 6, 8}, eq.Gains)
}

func TestEqRejectsUnknownBandAndPreset(t *testing.T) {
	var eq EqSettings
	assert.Error(t, eq.SetGain(440, 1))
	assert.Error(t, eq.ApplyPreset("Loudness"))
	assert.Equal(t, EqGains{}, eq.Gains)
}

func TestEqGainIsClamped(t *testing.T) {
	var eq EqSettings
	require.NoError(t, eq.SetGain(60, 40))
	require.NoError(t, eq.SetGain(16000, -40))
	assert.Equal(t, MaxEqGain, eq.Gain(60))
	assert.Equal(t, MinEqGain, eq.Gain(16000))
}

func TestAutoPreset(t *testing.T) {
	assert.Equal(t, PresetBassBoost, AutoPreset([]string{"Hip Hop"}))
	assert.Equal(t, PresetVocal, AutoPreset([]string{"indie", "acoustic"}))
	assert.Equal(t, PresetTreble, AutoPreset([]string{"jazz"}))
	assert.Equal(t, PresetFlat, AutoPreset(nil))
}

func TestReverbLevels(t *testing.T) {
	r := ReverbSettings{Active: false, Mix: 0.7, Decay: 2}
	dry, wet := r.Levels()
	assert.Equal(t, 1.0, dry)
	assert.Equal(t, 0.0, wet)

	r.Active = true
	dry, wet = r.Levels()
	assert.InDelta(t, 0.3, dry, 1e-9)
	assert.InDelta(t, 0.7, wet, 1e-9)
}

func TestReverbNormalize(t *testing.T) {
	r := ReverbSettings{Mix: 2, Decay: 0}.Normalize()
	assert.Equal(t, 1.0, r.Mix)
	assert.Equal(t, MinReverbDecay, r.Decay)
}

func TestGestureSettingsAlwaysTotal(t *testing.T) {
	var g GestureSettings
	assert.Equal(t, ActionNone, g.Action(GesturePinch))

	require.NoError(t, g.Bind(GesturePinch, ActionVolume))
	assert.Equal(t, ActionVolume, g.Action(GesturePinch))
	assert.Error(t, g.Bind(GestureSwipe, "SPIN"))
	assert.Error(t, g.Bind("TAP", ActionSeek))
}

func TestRepeatModeCycle(t *testing.T) {
	assert.Equal(t, RepeatAll, RepeatOff.Next())
	assert.Equal(t, RepeatOne, RepeatAll.Next())
	assert.Equal(t, RepeatOff, RepeatOne.Next())
}

func TestMediaItemIsLocal(t *testing.T) {
	assert.True(t, (&MediaItem{ID: "local-abc"}).IsLocal())
	assert.True(t, (&MediaItem{ID: "x", MediaURL: "blob:http://a/b"}).IsLocal())
	assert.False(t, (&MediaItem{ID: "x", MediaURL: "https://cdn/a.mp3"}).IsLocal())
}
