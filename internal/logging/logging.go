// Package logging holds the verbosity levels and logger constructors shared by
// the controller binaries and their test suites.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Verbosity levels used with logger.V(...).
const (
	DEBUG = 1
	TRACE = 2
)

// NewLogger builds the process logger from the bound zap options and installs
// it as the controller-runtime logger. When logFile is not empty, output is
// also appended to that file.
func NewLogger(opts *zap.Options, logFile string) (logr.Logger, io.Closer, error) {
	var writer io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return logr.Discard(), nil, fmt.Errorf("failed to open log file %q: %w", logFile, err)
		}
		writer = io.MultiWriter(os.Stderr, f)
		closer = f
	}
	if opts.TimeEncoder == nil {
		opts.TimeEncoder = zapcore.ISO8601TimeEncoder
	}

	logger := zap.New(zap.UseFlagOptions(opts), zap.WriteTo(writer))
	ctrl.SetLogger(logger)
	return logger, closer, nil
}

// NewTestLogger installs a development logger that writes to the Ginkgo
// writer so output only shows up for failing specs.
func NewTestLogger() logr.Logger {
	logger := zap.New(zap.WriteTo(GinkgoWriter), zap.UseDevMode(true), zap.Level(zapcore.Level(-TRACE)))
	ctrl.SetLogger(logger)
	return logger
}
