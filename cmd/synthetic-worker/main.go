// Command synthetic-worker is a stand-in inference workload. It burns CPU at a
// configurable frame rate and reports cumulative frames on stdout in the
// format stressctl parses, so sessions can be exercised without a model.
package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/llm-d/llm-d-stress-controller/internal/worker"
)

type options struct {
	model          string
	source         string
	duration       time.Duration
	fps            float64
	work           int
	reportInterval time.Duration
	crashAfter     time.Duration
	ignoreTerm     bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	ctrl.SetLogger(zap.New(zap.WriteTo(os.Stderr), zap.UseFlagOptions(&zap.Options{
		TimeEncoder: zapcore.ISO8601TimeEncoder,
	})))
	logger := ctrl.Log.WithName("synthetic-worker").WithValues(
		"model", opts.model,
		"source", opts.source,
		"instance", os.Getenv("STRESS_INSTANCE_INDEX"))

	ctx := context.Background()
	if !opts.ignoreTerm {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, syscall.SIGTERM, os.Interrupt)
		defer stop()
	} else {
		signal.Ignore(syscall.SIGTERM)
	}
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	logger.Info("Starting", "fps", opts.fps, "duration", opts.duration)
	frames, crashed := process(ctx, opts, func(n int64) {
		fmt.Fprintln(os.Stdout, worker.FormatProgress(n))
	})
	if crashed {
		logger.Info("Simulated crash", "frames", frames)
		return 3
	}
	logger.Info("Finished", "frames", frames)
	return 0
}

func parseFlags(args []string) (options, error) {
	var o options
	var duration string
	fs := pflag.NewFlagSet("synthetic-worker", pflag.ContinueOnError)
	fs.StringVar(&o.model, "model", "", "Model locator, only logged.")
	fs.StringVar(&o.source, "source", "", "Video source locator, only logged.")
	fs.StringVar(&duration, "duration", "0", "Run time in seconds or as a duration string. 0 runs until terminated.")
	fs.Float64Var(&o.fps, "fps", 10, "Frames processed per second.")
	fs.IntVar(&o.work, "work", 20000, "Hash rounds per frame.")
	fs.DurationVar(&o.reportInterval, "report-interval", time.Second, "Interval between progress lines.")
	fs.DurationVar(&o.crashAfter, "crash-after", 0, "Exit with a failure after this long. 0 disables.")
	fs.BoolVar(&o.ignoreTerm, "ignore-term", false, "Ignore SIGTERM.")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	d, err := parseDuration(duration)
	if err != nil {
		return o, fmt.Errorf("invalid --duration: %w", err)
	}
	o.duration = d
	if o.fps <= 0 {
		return o, fmt.Errorf("--fps must be positive, got %v", o.fps)
	}
	if o.reportInterval <= 0 {
		return o, fmt.Errorf("--report-interval must be positive, got %v", o.reportInterval)
	}
	return o, nil
}

// parseDuration accepts whole seconds as written by the {duration}
// placeholder, or a Go duration string.
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("duration must not be negative, got %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative, got %s", s)
	}
	return d, nil
}

// process runs frames until ctx is done or the crash deadline passes. It
// reports the cumulative count every report interval and once at the end.
func process(ctx context.Context, o options, report func(int64)) (frames int64, crashed bool) {
	frameTicker := time.NewTicker(time.Duration(float64(time.Second) / o.fps))
	defer frameTicker.Stop()
	reportTicker := time.NewTicker(o.reportInterval)
	defer reportTicker.Stop()

	var crash <-chan time.Time
	if o.crashAfter > 0 {
		t := time.NewTimer(o.crashAfter)
		defer t.Stop()
		crash = t.C
	}

	for {
		select {
		case <-ctx.Done():
			report(frames)
			return frames, false
		case <-crash:
			report(frames)
			return frames, true
		case <-reportTicker.C:
			report(frames)
		case <-frameTicker.C:
			burn(o.work)
			frames++
		}
	}
}

func burn(rounds int) {
	sum := sha256.Sum256([]byte("frame"))
	for i := 0; i < rounds; i++ {
		sum = sha256.Sum256(sum[:])
	}
}
