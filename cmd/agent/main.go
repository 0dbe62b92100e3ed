package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/biasmeter/internal/buildinfo"
	"github.com/and161185/biasmeter/internal/client"
	"github.com/and161185/biasmeter/internal/config"
	"github.com/and161185/biasmeter/internal/monitor"
	"github.com/and161185/biasmeter/internal/source"
)

func main() {
	buildinfo.PrintBuildInfo(os.Stdout, "agent")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	cfg := config.NewClientConfig()
	defer func() { _ = cfg.Logger.Sync() }()

	src, err := newSource(cfg.Source)
	if err != nil {
		cfg.Logger.Fatal(err)
	}

	cfg.Logger.Infof("Agent config: Server=%s, Session=%q, Source=%s, Poll=%ds, Report=%ds, RateLimit=%d",
		cfg.ServerAddr, cfg.SessionID, cfg.Source, cfg.PollInterval, cfg.ReportInterval, cfg.RateLimit)

	agent, err := client.NewClient(src, cfg)
	if err != nil {
		cfg.Logger.Fatal(err)
	}
	if err := agent.Run(ctx); err != nil {
		cfg.Logger.Fatal(err)
	}
}

// newSource builds the simulated walk the agent reports.
func newSource(kind string) (source.SampleSource, error) {
	src, err := monitor.DefaultSources(kind)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: the agent needs a simulated source, got %q", monitor.ErrUnknownSource, kind)
	}
	return src, nil
}
