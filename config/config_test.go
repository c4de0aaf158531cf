package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUDIO_SAMPLE_RATE", "")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	assert.Equal(t, 0, cfg.RedisDB, "unparsable ints fall back to the default")
	assert.Equal(t, 256, cfg.AnalyserFFTSize)
	assert.Equal(t, "ws", cfg.PartyTransport)
	assert.True(t, cfg.OnlineByDefault)
	assert.Equal(t, "mtcplayer", cfg.RedisPrefix)
	assert.Equal(t, 3, cfg.RedisRetries)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ANALYSER_FFT_SIZE", "512")
	t.Setenv("PLAYER_ONLINE", "false")
	t.Setenv("PLAYER_VOLUME", "0.25")
	t.Setenv("PARTY_TRANSPORT", "redis")

	cfg := Load()

	assert.Equal(t, 512, cfg.AnalyserFFTSize)
	assert.False(t, cfg.OnlineByDefault)
	assert.InDelta(t, 0.25, cfg.DefaultVolume, 1e-9)
	assert.Equal(t, "redis", cfg.PartyTransport)
}
