package audio

import "math"

// NoisyThreshold is the noise level above which a recording is considered noisy
const NoisyThreshold = 0.5

// NoiseLevel returns the RMS of the samples relative to the RMS of a full-scale
// signal. Silence is 0, a full-scale square wave is 1.
func NoiseLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}

	rms := math.Sqrt(sum / float64(len(samples)))
	return rms / math.MaxInt16
}

// WAVNoiseLevel computes NoiseLevel over the data chunk of a PCM-16 container
func WAVNoiseLevel(data []byte) (float64, error) {
	samples, _, err := DecodePCM16(data)
	if err != nil {
		return 0, err
	}
	return NoiseLevel(samples), nil
}
