package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quintans/eventhub/internal/app"
	"github.com/quintans/eventhub/internal/lib/bus"
	"github.com/quintans/eventhub/internal/lib/dispatch"
	"github.com/quintans/eventhub/internal/metrics"
	"github.com/quintans/eventhub/internal/replay"
	"github.com/quintans/faults"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type options struct {
	rate        float64
	loop        int
	channel     string
	metricsAddr string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Replay recorded messages through the event bus",
		Long: "Replay reads JSON lines messages from a file, or stdin when no file is given, and publishes " +
			"them on the event bus, printing every delivered message.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), path, opts)
		},
	}

	cmd.Flags().Float64Var(&opts.rate, "rate", 0, "maximum messages per second (0 means unlimited)")
	cmd.Flags().IntVar(&opts.loop, "loop", 1, "number of times the input is replayed (0 means until interrupted)")
	cmd.Flags().StringVar(&opts.channel, "channel", bus.DefaultChannel, "channel the messages are published on")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "address serving prometheus metrics, e.g. :9090")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the replay version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s replay %s\n", app.Name, app.Version)
		},
	}
}

func run(ctx context.Context, stdin io.Reader, out io.Writer, path string, opts options) error {
	if opts.rate < 0 {
		return faults.Errorf("invalid rate %v: must not be negative", opts.rate)
	}
	if opts.loop < 0 {
		return faults.Errorf("invalid loop %d: must not be negative", opts.loop)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	data, err := readInput(stdin, path)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	b := bus.New(
		bus.WithLogger(logger),
		bus.WithObserver(metrics.NewBusObserver(reg)),
	)

	if opts.metricsAddr != "" {
		shutdown := serveMetrics(opts.metricsAddr, reg, logger)
		defer shutdown()
	}

	p := newPrinter(out)
	if err := b.Subscribe(p, opts.channel); err != nil {
		return faults.Errorf("subscribing printer: %w", err)
	}

	var failures int
	var d bus.Dispatcher = dispatch.Immediate
	if opts.rate > 0 {
		d, err = dispatch.Throttle(rate.NewLimiter(rate.Limit(opts.rate), 1), d)
		if err != nil {
			return faults.Errorf("throttling at %v messages per second: %w", opts.rate, err)
		}
	}
	d = dispatch.Recover(d, func(err error) {
		failures++
		dispatch.LogPanic(err)
	})

	start := time.Now()
	published := 0
	for i := 0; opts.loop == 0 || i < opts.loop; i++ {
		err := replay.Decode(bytes.NewReader(data), func(m app.Message) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			published++
			return b.PublishWithDispatcher(m, d, opts.channel)
		})
		if errors.Is(err, context.Canceled) {
			logger.Info("Replay interrupted", "round", i+1)
			break
		}
		if err != nil {
			return faults.Errorf("replaying %s: %w", path, err)
		}
		logger.Debug("Replay round finished", "round", i+1)
	}

	// keeps the printer reachable until the last message was delivered
	b.Unsubscribe(p)

	fmt.Fprintf(out, "Replayed %s messages (%s) in %s: %s",
		humanize.Comma(int64(published)),
		humanize.Bytes(uint64(len(data))),
		time.Since(start).Round(time.Millisecond),
		p.summary(),
	)
	if failures > 0 {
		fmt.Fprintf(out, ", %s failed", humanize.Comma(int64(failures)))
	}
	fmt.Fprintln(out)
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, faults.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("Failed to stop metrics server", "error", err)
		}
	}
}

type printer struct {
	out io.Writer

	mu     sync.Mutex
	counts map[string]int
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:    out,
		counts: map[string]int{},
	}
}

func (p *printer) HandleMessage(m app.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[m.Kind()]++
	fmt.Fprintf(p.out, "%-8s %s\n", m.Kind(), describe(m))
}

func (p *printer) summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.counts) == 0 {
		return "nothing delivered"
	}
	kinds := make([]string, 0, len(p.counts))
	for k := range p.counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%s", k, humanize.Comma(int64(p.counts[k]))))
	}
	return strings.Join(parts, " ")
}

func describe(m app.Message) string {
	switch t := m.(type) {
	case app.Notify:
		return fmt.Sprintf("[%s] %s", t.Type, t.Message)
	case app.Loading:
		return fmt.Sprintf("%q show=%t", t.Text, t.Show)
	case app.Tick:
		return fmt.Sprintf("#%d %s", t.Seq, humanize.Time(t.At))
	default:
		return fmt.Sprintf("%+v", m)
	}
}
