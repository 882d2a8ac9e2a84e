package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xlttj/liveserve/pkg/app"
	"github.com/xlttj/liveserve/pkg/logging"
	"github.com/xlttj/liveserve/pkg/supervisor"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServeCmd serves folders headless
type ServeCmd struct {
	Paths   []string `arg:"" name:"PATH" help:"Folders to serve"`
	Port    int      `short:"p" help:"Preferred port (default: the defaultPort setting)"`
	Metrics string   `name:"metrics-listen" placeholder:"ADDR" help:"Expose Prometheus metrics at ADDR/metrics"`
}

func (s *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, opts, err := cli.open()
	if err != nil {
		return err
	}
	defer closeService(svc, opts)
	out := cli.out()

	if s.Metrics != "" {
		opts.MetricsListen = s.Metrics
	}
	if opts.MetricsListen != "" {
		srv, err := startMetrics(opts.MetricsListen)
		if err != nil {
			return err
		}
		defer srv.Close()
		printInfo(out, "Metrics at http://%s/metrics", opts.MetricsListen)
	}

	updates, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	started := 0
	for _, path := range s.Paths {
		var rec supervisor.ServerRecord
		if s.Port > 0 {
			rec, err = svc.ServeOnPort(path, s.Port)
		} else {
			rec, err = svc.Serve(path)
		}
		if err != nil {
			printError(out, "cannot serve %s: %v", path, err)
			continue
		}
		started++
		logging.LogInfo("Serving %s on port %d", rec.Root, rec.Port)
	}
	if started == 0 {
		return errors.New("no folder could be served")
	}

	statuses := make(map[string]supervisor.Status)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			printInfo(out, "Stopping %s", app.Summary(svc.Records()))
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			statuses = reportChanges(out, statuses, snap)
		}
	}
}

// reportChanges prints records whose status changed since prev and returns
// the new status map
func reportChanges(w io.Writer, prev map[string]supervisor.Status, snap []supervisor.ServerRecord) map[string]supervisor.Status {
	next := make(map[string]supervisor.Status, len(snap))
	for _, rec := range snap {
		next[rec.Root] = rec.Status
		if prev[rec.Root] == rec.Status {
			continue
		}
		switch rec.Status {
		case supervisor.StatusRunning:
			printSuccess(w, "%s  %s", rec.URL(), rec.Root)
		case supervisor.StatusError:
			printError(w, "%s: %s", rec.Root, rec.Error)
		case supervisor.StatusStarting:
			faint.Fprintf(w, "  … starting %s on port %d\n", rec.Root, rec.Port)
		}
	}
	for root := range prev {
		if _, ok := next[root]; !ok {
			printWarning(w, "stopped %s", root)
		}
	}
	return next
}

// startMetrics serves the default Prometheus registry at addr/metrics
func startMetrics(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogError("Metrics server failed: %v", err)
		}
	}()
	return srv, nil
}
