package audioio

import (
	"testing"
)

func TestUpsample_TwoSamples(t *testing.T) {
	result := Upsample([]int16{0, 30000}, 3)

	expected := []int16{0, 10000, 20000, 30000, 30000, 30000}
	if len(result) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(result))
	}
	for i, s := range expected {
		if result[i] != s {
			t.Errorf("Sample %d: expected %d, got %d", i, s, result[i])
		}
	}
	for i := 1; i < len(result); i++ {
		if result[i] < result[i-1] {
			t.Errorf("Output not monotonic at %d: %d < %d", i, result[i], result[i-1])
		}
	}
}

func TestUpsample_Extremes(t *testing.T) {
	result := Upsample([]int16{-32768, 32767}, 3)

	if result[0] != -32768 {
		t.Errorf("Expected first sample -32768, got %d", result[0])
	}
	for i := 3; i < 6; i++ {
		if result[i] != 32767 {
			t.Errorf("Sample %d: expected 32767, got %d", i, result[i])
		}
	}
	if result[1] >= result[2] {
		t.Errorf("Expected rising ramp, got %d then %d", result[1], result[2])
	}
}

func TestUpsample_Empty(t *testing.T) {
	if len(Upsample(nil, 3)) != 0 {
		t.Errorf("Expected empty result for nil input")
	}
}

func TestUpsample_FactorOneCopies(t *testing.T) {
	in := []int16{1, 2, 3}
	out := Upsample(in, 1)
	out[0] = 99
	if in[0] != 1 {
		t.Errorf("Upsample must not alias its input")
	}
}

func TestBytesSamplesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345}
	result := BytesToSamples(SamplesToBytes(samples))

	for i, s := range samples {
		if result[i] != s {
			t.Errorf("Sample %d: expected %d, got %d", i, s, result[i])
		}
	}
}
