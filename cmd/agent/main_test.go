package main

import (
	"context"
	"testing"

	"github.com/and161185/biasmeter/internal/monitor"
	"github.com/stretchr/testify/require"
)

func TestNewSource(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{monitor.SourceAnalytics, false},
		{monitor.SourceLive, false},
		{monitor.SourceExternal, true},
		{"sensor", true},
	}
	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			src, err := newSource(tc.kind)
			if tc.wantErr {
				require.ErrorIs(t, err, monitor.ErrUnknownSource)
				return
			}
			require.NoError(t, err)
			s, err := src.Next(context.Background())
			require.NoError(t, err)
			require.GreaterOrEqual(t, s.Value, 0.0)
			require.LessOrEqual(t, s.Value, 100.0)
		})
	}
}
