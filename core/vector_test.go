package core

import (
	"math"
	"testing"
)

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want []float32
	}{
		{"empty", []float32{}, []float32{}},
		{"zero vector", []float32{0, 0, 0}, []float32{0, 0, 0}},
		{"axis aligned", []float32{0, 5, 0}, []float32{0, 1, 0}},
		{"3-4-5", []float32{3, 4}, []float32{0.6, 0.8}},
		{"negative components", []float32{-3, 4}, []float32{-0.6, 0.8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeVector(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("got[%d] = %f, want %f", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNormalizeVectorDoesNotModifyInput(t *testing.T) {
	in := []float32{3, 4}
	NormalizeVector(in)
	if in[0] != 3 || in[1] != 4 {
		t.Errorf("input modified: %v", in)
	}
}

func TestNormalizeVectorUnitLength(t *testing.T) {
	v := NormalizeVector([]float32{1.5, -2.25, 0.125, 9})
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("squared length = %f, want 1", sum)
	}
}
