// Package buildinfo reports the version stamped in with -ldflags -X.
package buildinfo

import (
	"fmt"
	"io"
)

var (
	BuildVersion string
	BuildDate    string
	BuildCommit  string
)

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// PrintBuildInfo writes the version, date and commit of binary app to w.
func PrintBuildInfo(w io.Writer, app string) {
	fmt.Fprintf(w, "%s build version: %s\n", app, orNA(BuildVersion))
	fmt.Fprintf(w, "%s build date: %s\n", app, orNA(BuildDate))
	fmt.Fprintf(w, "%s build commit: %s\n", app, orNA(BuildCommit))
}
