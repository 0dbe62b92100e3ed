package inmemory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/and161185/biasmeter/model"
	"github.com/and161185/biasmeter/storage"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sample(sec int, v float64) model.Sample {
	return model.Sample{Timestamp: t0.Add(time.Duration(sec) * time.Second), Value: v}
}

func TestMemStorage_SamplesOldestFirst(t *testing.T) {
	ctx := context.Background()
	st := NewMemStorage(0)

	for i := 0; i < 5; i++ {
		require.NoError(t, st.SaveSample(ctx, "a", sample(i, float64(70+i))))
	}
	require.NoError(t, st.SaveSample(ctx, "b", sample(0, 10)))

	got, err := st.Samples(ctx, "a", 3)
	require.NoError(t, err)
	require.Equal(t, []model.Sample{sample(2, 72), sample(3, 73), sample(4, 74)}, got)

	got, err = st.Samples(ctx, "a", 100)
	require.NoError(t, err)
	require.Len(t, got, 5)

	got, err = st.Samples(ctx, "missing", 10)
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = st.Samples(ctx, "a", 0)
	require.ErrorIs(t, err, storage.ErrInvalidLimit)
}

func TestMemStorage_Capacity(t *testing.T) {
	ctx := context.Background()
	st := NewMemStorage(2)

	for i := 0; i < 4; i++ {
		require.NoError(t, st.SaveSample(ctx, "a", sample(i, float64(i))))
		require.NoError(t, st.SaveAlert(ctx, "a", model.AlertEvent{Title: string(rune('A' + i))}))
	}

	samples, err := st.Samples(ctx, "a", 10)
	require.NoError(t, err)
	require.Equal(t, []model.Sample{sample(2, 2), sample(3, 3)}, samples)

	alerts, err := st.Alerts(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Equal(t, "C", alerts[0].Title)
	require.Equal(t, "D", alerts[1].Title)
}

func TestMemStorage_ResultIsCopy(t *testing.T) {
	ctx := context.Background()
	st := NewMemStorage(0)
	require.NoError(t, st.SaveSample(ctx, "a", sample(0, 50)))

	got, _ := st.Samples(ctx, "a", 1)
	got[0].Value = 0

	again, _ := st.Samples(ctx, "a", 1)
	require.Equal(t, 50.0, again[0].Value)
}

func TestMemStorage_FileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive.json")

	st := NewMemStorage(0)
	require.NoError(t, st.SaveToFile(ctx, path), "empty archive writes nothing")
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, st.SaveSample(ctx, "a", sample(1, 61.5)))
	require.NoError(t, st.SaveAlert(ctx, "a", model.AlertEvent{
		Title: "WARNING", Severity: model.SeverityMedium, Timestamp: t0,
	}))
	require.NoError(t, st.SaveToFile(ctx, path))

	restored := NewMemStorage(0)
	require.NoError(t, restored.LoadFromFile(ctx, path))

	samples, err := restored.Samples(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.True(t, samples[0].Timestamp.Equal(sample(1, 0).Timestamp))
	require.Equal(t, 61.5, samples[0].Value)

	alerts, err := restored.Alerts(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, model.SeverityMedium, alerts[0].Severity)
}

func TestMemStorage_LoadMissingAndBroken(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := NewMemStorage(0)

	require.NoError(t, st.LoadFromFile(ctx, filepath.Join(dir, "nope.json")))

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0644))
	require.Error(t, st.LoadFromFile(ctx, broken))
}

func TestMemStorage_Ping(t *testing.T) {
	require.NoError(t, NewMemStorage(0).Ping(context.Background()))
}
