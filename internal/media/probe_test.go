package media

import (
	"math"
	"testing"
)

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97},
		{"25/1", 25},
		{"0/0", 0},
		{"", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		got := parseFrameRate(tt.in)
		if math.Abs(got-tt.want) > 0.005 {
			t.Errorf("parseFrameRate(%q) = %v, want about %v", tt.in, got, tt.want)
		}
	}
}
