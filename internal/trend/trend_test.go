package trend

import (
	"math"
	"testing"
	"time"

	"github.com/and161185/biasmeter/model"
	"github.com/stretchr/testify/require"
)

func TestSmooth_Properties(t *testing.T) {
	series := [][]float64{
		{85},
		{85, 70.5},
		{100, 60, 95, 61.2, 77, 88.8},
	}

	for _, f := range []float64{0, 0.25, 0.5, 1} {
		require.Empty(t, Smooth(nil, f))
		require.Empty(t, Smooth([]float64{}, f))
	}

	for _, v := range series {
		require.Equal(t, v, Smooth(v, 1))

		flat := Smooth(v, 0)
		require.Len(t, flat, len(v))
		for _, x := range flat {
			require.Equal(t, v[0], x)
		}
	}
}

func TestSmooth_EMA(t *testing.T) {
	got := Smooth([]float64{100, 60, 80}, 0.5)
	require.Equal(t, []float64{100, 80, 80}, got)

	got = Smooth([]float64{10, 20}, 0.25)
	require.InDelta(t, 12.5, got[1], 1e-9)
}

func TestSmooth_ClampsFactor(t *testing.T) {
	v := []float64{1, 2, 3}
	require.Equal(t, Smooth(v, 1), Smooth(v, 7))
	require.Equal(t, Smooth(v, 0), Smooth(v, -3))
	require.Equal(t, v, Smooth(v, math.NaN()))
}

func TestSmooth_DoesNotMutateInput(t *testing.T) {
	v := []float64{1, 5, 9}
	_ = Smooth(v, 0.3)
	require.Equal(t, []float64{1, 5, 9}, v)
}

func TestFactorFromLevel(t *testing.T) {
	require.Equal(t, 0.5, FactorFromLevel(50))
	require.Equal(t, 0.0, FactorFromLevel(-10))
	require.Equal(t, 1.0, FactorFromLevel(250))
}

func TestGradeOf(t *testing.T) {
	tests := []struct {
		score float64
		want  Grade
	}{
		{100, Excellent},
		{90, Excellent},
		{89.9, Good},
		{80, Good},
		{75, Fair},
		{69.9, Poor},
		{0, Poor},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, GradeOf(tc.score), "score %v", tc.score)
	}
}

func TestLabels(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 10, 0, time.UTC)
	samples := []model.Sample{
		{Timestamp: now.Add(-6 * time.Second)},
		{Timestamp: now.Add(-2500 * time.Millisecond)},
		{Timestamp: now},
	}
	require.Equal(t, []string{"-6s", "-2s", "Now"}, Labels(samples, now))
}

func BenchmarkSmooth(b *testing.B) {
	v := make([]float64, 15)
	for i := range v {
		v[i] = float64(60 + i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Smooth(v, 0.5)
	}
}
