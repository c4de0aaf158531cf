package model

import (
	"fmt"
	"strings"
)

// EqBands is the number of equalizer stages.
const EqBands = 5

// EqFrequencies are the fixed centre frequencies in Hz, lowest first.
var EqFrequencies = [EqBands]float64{60, 250, 1000, 4000, 16000}

const (
	MaxEqGain = 12.0
	MinEqGain = -12.0
)

// PresetName 均衡器预设名
type PresetName string

const (
	PresetFlat      PresetName = "Flat"
	PresetBassBoost PresetName = "Bass Boost"
	PresetVocal     PresetName = "Vocal"
	PresetTreble    PresetName = "Treble"
	PresetCustom    PresetName = "Custom"
)

// EqGains holds one gain in dB per band, ordered like EqFrequencies.
type EqGains [EqBands]float64

var presetGains = map[PresetName]EqGains{
	PresetFlat:      {0, 0, 0, 0, 0},
	PresetBassBoost: {8, 5, 0, 0, 2},
	PresetVocal:     {-2, 2, 5, 3, 1},
	PresetTreble:    {-2, 0, 2, 6, 8},
}

// PresetGains returns the fixed gains of a named preset.
func PresetGains(name PresetName) (EqGains, bool) {
	g, ok := presetGains[name]
	return g, ok
}

// EqSettings 均衡器设置
type EqSettings struct {
	Preset PresetName `json:"preset"`
	Auto   bool       `json:"auto,omitempty"` // Smart EQ
	Gains  EqGains    `json:"gains"`
}

// DefaultEqSettings returns a flat equalizer.
func DefaultEqSettings() EqSettings {
	return EqSettings{Preset: PresetFlat}
}

// BandIndex maps a centre frequency to its stage index.
func BandIndex(freq float64) (int, error) {
	for i, f := range EqFrequencies {
		if f == freq {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no equalizer band at %gHz", freq)
}

// SetGain edits one band. Editing any band leaves the named preset behind.
func (s *EqSettings) SetGain(freq, gain float64) error {
	i, err := BandIndex(freq)
	if err != nil {
		return err
	}
	s.Gains[i] = clamp(gain, MinEqGain, MaxEqGain)
	s.Preset = PresetCustom
	return nil
}

// Gain returns the gain of the band at freq.
func (s EqSettings) Gain(freq float64) float64 {
	i, err := BandIndex(freq)
	if err != nil {
		return 0
	}
	return s.Gains[i]
}

// ApplyPreset overwrites all five gains with the preset table.
func (s *EqSettings) ApplyPreset(name PresetName) error {
	g, ok := presetGains[name]
	if !ok {
		return fmt.Errorf("unknown equalizer preset %q", name)
	}
	s.Preset = name
	s.Gains = g
	return nil
}

// AutoPreset picks a preset from a track's genre labels.
func AutoPreset(labels []string) PresetName {
	combined := strings.ToLower(strings.Join(labels, " "))
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(combined, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("rock", "metal", "dance", "techno", "hip hop"):
		return PresetBassBoost
	case has("pop", "acoustic", "folk"):
		return PresetVocal
	case has("classical", "jazz"):
		return PresetTreble
	default:
		return PresetFlat
	}
}

const (
	MinReverbDecay = 0.1
	MaxReverbDecay = 5.0
)

// ReverbSettings 混响设置
type ReverbSettings struct {
	Active bool    `json:"active"`
	Mix    float64 `json:"mix"`   // wet proportion, 0..1
	Decay  float64 `json:"decay"` // seconds
}

// DefaultReverbSettings is reverb off with a 2s tail ready.
func DefaultReverbSettings() ReverbSettings {
	return ReverbSettings{Mix: 0.3, Decay: 2.0}
}

// Normalize clamps mix and decay into their allowed ranges.
func (r ReverbSettings) Normalize() ReverbSettings {
	r.Mix = clamp(r.Mix, 0, 1)
	r.Decay = clamp(r.Decay, MinReverbDecay, MaxReverbDecay)
	return r
}

// Levels returns the effective dry and wet gains.
func (r ReverbSettings) Levels() (dry, wet float64) {
	if !r.Active {
		return 1, 0
	}
	mix := clamp(r.Mix, 0, 1)
	return 1 - mix, mix
}

// GestureType 手势类型
type GestureType string

const (
	GestureSwipe  GestureType = "SWIPE"
	GesturePinch  GestureType = "PINCH"
	GestureCircle GestureType = "CIRCLE"
)

// GestureAction 手势动作
type GestureAction string

const (
	ActionSeek   GestureAction = "SEEK"
	ActionVolume GestureAction = "VOLUME"
	ActionZoom   GestureAction = "ZOOM"
	ActionNone   GestureAction = "NONE"
)

// GestureSettings binds exactly one action to each gesture kind.
type GestureSettings struct {
	Swipe  GestureAction `json:"SWIPE"`
	Pinch  GestureAction `json:"PINCH"`
	Circle GestureAction `json:"CIRCLE"`
}

// DefaultGestureSettings returns the shipped bindings.
func DefaultGestureSettings() GestureSettings {
	return GestureSettings{Swipe: ActionSeek, Pinch: ActionZoom, Circle: ActionVolume}
}

// Action returns the binding for a gesture kind; unset bindings read as NONE.
func (g GestureSettings) Action(t GestureType) GestureAction {
	var a GestureAction
	switch t {
	case GestureSwipe:
		a = g.Swipe
	case GesturePinch:
		a = g.Pinch
	case GestureCircle:
		a = g.Circle
	}
	if a == "" {
		return ActionNone
	}
	return a
}

// Bind replaces the action of one gesture kind.
func (g *GestureSettings) Bind(t GestureType, a GestureAction) error {
	switch a {
	case ActionSeek, ActionVolume, ActionZoom, ActionNone:
	default:
		return fmt.Errorf("unknown gesture action %q", a)
	}
	switch t {
	case GestureSwipe:
		g.Swipe = a
	case GesturePinch:
		g.Pinch = a
	case GestureCircle:
		g.Circle = a
	default:
		return fmt.Errorf("unknown gesture type %q", t)
	}
	return nil
}

// RepeatMode 循环模式
type RepeatMode string

const (
	RepeatOff RepeatMode = "OFF"
	RepeatAll RepeatMode = "ALL"
	RepeatOne RepeatMode = "ONE"
)

// Next cycles OFF -> ALL -> ONE -> OFF.
func (r RepeatMode) Next() RepeatMode {
	switch r {
	case RepeatOff, "":
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
