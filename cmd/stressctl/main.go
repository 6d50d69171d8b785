// Command stressctl finds the maximum number of concurrent inference
// workloads a device sustains. It runs batches of 1, 2, ... instances, samples
// host and accelerator utilization during each batch and stops at the first
// batch that exceeds the CPU, memory or throughput thresholds.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/llm-d/llm-d-stress-controller/internal/batch"
	"github.com/llm-d/llm-d-stress-controller/internal/collector"
	"github.com/llm-d/llm-d-stress-controller/internal/config"
	"github.com/llm-d/llm-d-stress-controller/internal/engines/scaling"
	"github.com/llm-d/llm-d-stress-controller/internal/logging"
	"github.com/llm-d/llm-d-stress-controller/internal/metrics"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfigError = 2
)

const pushTimeout = 10 * time.Second

var setupLog = ctrl.Log.WithName("setup")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("stressctl", pflag.ContinueOnError)
	config.BindFlags(fs)

	opts := zap.Options{
		Development: false,
		TimeEncoder: zapcore.ISO8601TimeEncoder,
	}
	goFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	opts.BindFlags(goFlags)
	fs.AddGoFlagSet(goFlags)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitConfigError
	}

	loader, err := config.NewLoader(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}

	if cfg.Output.Dir != "" {
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
			return exitConfigError
		}
	}
	_, logCloser, err := logging.NewLogger(&opts, cfg.Output.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	defer func() { _ = logCloser.Close() }()

	ctx := ctrl.SetupSignalHandler()
	ctx = ctrl.LoggerInto(ctx, ctrl.Log.WithName("stressctl"))
	kube := &kubeClient{}

	cfg.Thresholds, err = resolveThresholds(ctx, cfg, loader.IsExplicit, kube.get)
	if err != nil {
		setupLog.Error(err, "unable to resolve threshold profiles")
		return exitConfigError
	}
	if err := cfg.Validate(); err != nil {
		setupLog.Error(err, "invalid configuration")
		return exitConfigError
	}

	runID := uuid.NewString()
	setupLog.Info("Stress session configured",
		"runID", runID,
		"model", cfg.Workload.Model,
		"source", cfg.Workload.Source,
		"launcher", cfg.Workload.Launcher,
		"profile", cfg.Profiles.Name,
		"maxInstances", cfg.Thresholds.MaxInstances,
		"cpuThreshold", cfg.Thresholds.CPUThreshold,
		"memThreshold", cfg.Thresholds.MemThreshold,
		"fpsThreshold", cfg.Thresholds.FPSThreshold)

	emitter, err := metrics.InitMetricsAndEmitter(crmetrics.Registry)
	if err != nil {
		setupLog.Error(err, "unable to register metrics")
		return exitFailure
	}
	serveErr, err := metrics.Serve(ctx, cfg.Output.MetricsBindAddress, crmetrics.Registry)
	if err != nil {
		setupLog.Error(err, "unable to serve metrics")
		return exitConfigError
	}
	go func() {
		for err := range serveErr {
			setupLog.Error(err, "metrics server stopped")
		}
	}()

	source, err := buildSource(ctx, cfg.Sampler)
	if err != nil {
		setupLog.Error(err, "unable to set up resource sampling")
		return exitConfigError
	}
	sampler := collector.NewSampler(source, cfg.Thresholds.SampleInterval, nil,
		collector.WithUnavailableRecorder(emitter))
	sourceNames := make([]string, 0, len(source.Sources()))
	for _, s := range source.Sources() {
		sourceNames = append(sourceNames, s.Name())
	}
	setupLog.Info("Resource sampling configured", "sources", sourceNames, "interval", sampler.Interval())

	launcher, err := buildLauncher(cfg.Workload, instanceLogDir(cfg.Output.Dir), kube.get)
	if err != nil {
		setupLog.Error(err, "unable to set up instance launcher")
		return exitConfigError
	}

	sinks, closeSinks, report, err := buildSinks(runID, cfg, emitter)
	if err != nil {
		setupLog.Error(err, "unable to set up result sinks")
		return exitConfigError
	}
	defer func() {
		if err := closeSinks(); err != nil {
			setupLog.Error(err, "failed to close result files")
		}
	}()

	runner := batch.NewRunner(runID, launcher, sampler, cfg.Thresholds, cfg.Workload)
	driver := scaling.NewDriver(runID, runner, sinks, cfg.Thresholds,
		scaling.WithCooldown(cfg.Workload.Cooldown),
		scaling.WithStateObserver(func(state scaling.State, n int) {
			emitter.ObserveState(string(state), n)
			if report != nil {
				report.ObserveState(string(state), n)
			}
		}))

	summary, runErr := driver.Run(ctx)

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := metrics.Push(pushCtx, cfg.Output.PushgatewayURL, runID, crmetrics.Registry); err != nil {
		setupLog.Error(err, "unable to push metrics")
	}

	if runErr != nil {
		setupLog.Error(runErr, "stress session failed")
		return exitFailure
	}
	fmt.Fprintf(os.Stdout, "maxSustainableInstances=%d totalBatchesRun=%d terminationReason=%s\n",
		summary.MaxSustainableInstances, summary.TotalBatchesRun, summary.TerminationReason)
	if summary.TotalBatchesRun == 0 {
		setupLog.Info("No batch completed")
		return exitFailure
	}
	return exitOK
}

func instanceLogDir(outputDir string) string {
	if outputDir == "" {
		return ""
	}
	return filepath.Join(outputDir, "logs")
}
