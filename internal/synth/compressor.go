package synth

import "math"

// compressor is a soft-knee peak limiter on the summed mix. Seven pools
// rendering into one bus will clip on chords without it.
type compressor struct {
	threshold float64 // linear amplitude where compression begins
	ratio     float64
	knee      float64

	// one-pole envelope follower state, per channel
	envLeft  float64
	envRight float64
	attack   float64
	release  float64
}

func newCompressor(sampleRate int) *compressor {
	return &compressor{
		threshold: 0.6,
		ratio:     4.0,
		knee:      0.1,
		attack:    envCoeff(0.003, sampleRate),
		release:   envCoeff(0.120, sampleRate),
	}
}

func envCoeff(seconds float64, sampleRate int) float64 {
	if seconds <= 0 {
		return 0
	}
	return math.Exp(-1.0 / (seconds * float64(sampleRate)))
}

func (c *compressor) process(left, right []float32) {
	for i := range left {
		left[i] = float32(c.sample(float64(left[i]), &c.envLeft))
		right[i] = float32(c.sample(float64(right[i]), &c.envRight))
	}
}

func (c *compressor) sample(x float64, env *float64) float64 {
	level := math.Abs(x)

	coeff := c.release
	if level > *env {
		coeff = c.attack
	}
	*env = coeff*(*env) + (1-coeff)*level

	gain := c.gainFor(*env)
	out := x * gain

	// Hard ceiling after compression; the limiter is not brick-wall.
	if out > 1 {
		out = 1
	} else if out < -1 {
		out = -1
	}
	return out
}

func (c *compressor) gainFor(level float64) float64 {
	kneeStart := c.threshold - c.knee/2
	if level <= kneeStart {
		return 1
	}

	var over float64
	if level < c.threshold+c.knee/2 {
		// Inside the knee: quadratic interpolation of the overshoot.
		d := level - kneeStart
		over = d * d / (2 * c.knee)
	} else {
		over = level - c.threshold
	}

	// The overshoot is attenuated by the ratio; everything below the
	// threshold passes through untouched.
	target := level - over*(1-1/c.ratio)
	if level == 0 {
		return 1
	}
	return target / level
}
