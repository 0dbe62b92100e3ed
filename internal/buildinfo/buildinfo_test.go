package buildinfo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrintBuildInfo(t *testing.T) {
	ov, od, oc := BuildVersion, BuildDate, BuildCommit
	t.Cleanup(func() { BuildVersion, BuildDate, BuildCommit = ov, od, oc })

	var buf bytes.Buffer
	BuildVersion, BuildDate, BuildCommit = "", "", ""
	PrintBuildInfo(&buf, "agent")
	require.Equal(t, "agent build version: N/A\nagent build date: N/A\nagent build commit: N/A\n", buf.String())

	buf.Reset()
	BuildVersion, BuildDate, BuildCommit = "v1.2.0", "2025-09-06", "deadbeef"
	PrintBuildInfo(&buf, "server")
	require.Contains(t, buf.String(), "server build version: v1.2.0\n")
	require.Contains(t, buf.String(), "server build commit: deadbeef\n")
}
