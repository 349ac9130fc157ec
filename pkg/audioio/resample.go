package audioio

import "math"

// Upsample raises the sample rate by an integer factor using linear
// interpolation between neighbouring samples:
//
//	out[i*factor+k] = (v0*(factor-k) + v1*k) / factor
//
// where v1 is the next input sample, or v0 itself for the last one.
// Results are saturated to the int16 range.
func Upsample(samples []int16, factor int) []int16 {
	if factor <= 1 || len(samples) == 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	out := make([]int16, len(samples)*factor)
	f := int32(factor)
	for i, s := range samples {
		v0 := int32(s)
		v1 := v0
		if i+1 < len(samples) {
			v1 = int32(samples[i+1])
		}
		for k := int32(0); k < f; k++ {
			out[i*factor+int(k)] = saturate((v0*(f-k) + v1*k) / f)
		}
	}
	return out
}

func saturate(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}
