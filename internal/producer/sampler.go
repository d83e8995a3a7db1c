package producer

import (
	"math"
	"time"
)

type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Euler is an orientation in radians.
type Euler struct {
	Pitch, Yaw, Roll float32
}

// Sample is one reading from the host. Position is in the host's raw
// coordinates; Origin is the region origin subtracted before transmission.
type Sample struct {
	Position    Vec3
	Orientation Euler
	Origin      Vec3
}

// Sampler supplies the current subject's state. ok is false when there is no
// subject yet, which is a normal condition and skips the tick.
type Sampler interface {
	Sample() (s Sample, ok bool)
}

type SamplerFunc func() (Sample, bool)

func (f SamplerFunc) Sample() (Sample, bool) {
	return f()
}

// OrbitConfig shapes the synthetic subject used when no host is attached.
type OrbitConfig struct {
	Center Vec3
	Origin Vec3
	Radius float32
	Period time.Duration
	// WarmUp is how long the sampler reports no subject after start.
	WarmUp time.Duration
}

func DefaultOrbitConfig() OrbitConfig {
	return OrbitConfig{
		Center: Vec3{X: 32, Y: 4, Z: 32},
		Origin: Vec3{X: 1024, Y: 0, Z: -2048},
		Radius: 12,
		Period: 20 * time.Second,
		WarmUp: 2 * time.Second,
	}
}

// OrbitSampler walks a subject around a horizontal circle, heading along the
// tangent, with a slight pitch oscillation.
type OrbitSampler struct {
	cfg   OrbitConfig
	start time.Time
	now   func() time.Time
}

func NewOrbitSampler(cfg OrbitConfig) *OrbitSampler {
	return newOrbitSampler(cfg, time.Now)
}

func newOrbitSampler(cfg OrbitConfig, now func() time.Time) *OrbitSampler {
	if cfg.Period <= 0 {
		cfg.Period = DefaultOrbitConfig().Period
	}
	return &OrbitSampler{cfg: cfg, start: now(), now: now}
}

func (o *OrbitSampler) Sample() (Sample, bool) {
	elapsed := o.now().Sub(o.start)
	if elapsed < o.cfg.WarmUp {
		return Sample{}, false
	}
	phase := 2 * math.Pi * float64(elapsed-o.cfg.WarmUp) / float64(o.cfg.Period)
	r := float64(o.cfg.Radius)
	local := Vec3{
		X: o.cfg.Center.X + float32(r*math.Cos(phase)),
		Y: o.cfg.Center.Y,
		Z: o.cfg.Center.Z + float32(r*math.Sin(phase)),
	}
	return Sample{
		Position: Vec3{X: local.X + o.cfg.Origin.X, Y: local.Y + o.cfg.Origin.Y, Z: local.Z + o.cfg.Origin.Z},
		Orientation: Euler{
			Pitch: float32(0.05 * math.Sin(2*phase)),
			Yaw:   float32(math.Mod(phase+math.Pi/2, 2*math.Pi)),
		},
		Origin: o.cfg.Origin,
	}, true
}
