package sim

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"sensenode/drivers/sps30"
)

// Environment produces plausible, slowly drifting room conditions shared by
// every simulated sensor.
type Environment struct {
	mu    sync.Mutex
	rng   *rand.Rand
	start time.Time
	now   func() time.Time

	// lightOverride, when set, pins the light level.
	lightOverride *float32
}

func NewEnvironment(seed int64) *Environment {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Environment{rng: rand.New(rand.NewSource(seed)), start: time.Now(), now: time.Now}
}

func (e *Environment) phase(period time.Duration) float64 {
	t := e.now().Sub(e.start).Seconds()
	return math.Sin(2 * math.Pi * t / period.Seconds())
}

func (e *Environment) jitter(scale float64) float64 {
	return (e.rng.Float64()*2 - 1) * scale
}

// SetLight pins the light level; a negative value releases it.
func (e *Environment) SetLight(lux float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if lux < 0 {
		e.lightOverride = nil
		return
	}
	e.lightOverride = &lux
}

// Lux is a daylight-like curve with small flicker.
func (e *Environment) Lux() float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lightOverride != nil {
		return *e.lightOverride
	}
	base := 300 + 250*e.phase(10*time.Minute)
	return float32(math.Max(0, base+e.jitter(3)))
}

// Climate returns temperature (°C) and relative humidity (%).
func (e *Environment) Climate() (float32, float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := 21.5 + 1.5*e.phase(30*time.Minute) + e.jitter(0.05)
	h := 45 - 5*e.phase(30*time.Minute) + e.jitter(0.2)
	return float32(t), float32(h)
}

// CO2 returns a concentration in ppm.
func (e *Environment) CO2() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint16(650 + 200*e.phase(20*time.Minute) + e.jitter(10))
}

// Particulates returns an SPS30-shaped sample.
func (e *Environment) Particulates() sps30.Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	pm := float32(6 + 3*e.phase(15*time.Minute) + e.jitter(0.5))
	return sps30.Sample{
		MassPM1_0: pm * 0.6, MassPM2_5: pm, MassPM4_0: pm * 1.1, MassPM10: pm * 1.2,
		NumPM0_5: pm * 4, NumPM1_0: pm * 4.6, NumPM2_5: pm * 4.7, NumPM4_0: pm * 4.7, NumPM10: pm * 4.7,
		TypicalSize: 0.55,
	}
}
