package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	ctrl "sigs.k8s.io/controller-runtime"
)

const shutdownTimeout = 5 * time.Second

// Serve exposes the gatherer on addr under /metrics until ctx ends. An addr
// of "" or "0" disables the endpoint. The returned channel receives the
// listener error, if any, and is closed when the server has shut down.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) (<-chan error, error) {
	errCh := make(chan error, 1)
	if addr == "" || addr == "0" {
		close(errCh)
		return errCh, nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	logger := ctrl.LoggerFrom(ctx)
	logger.Info("Serving metrics", "address", ln.Addr().String())

	go func() {
		defer close(errCh)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "Failed to shut down metrics server")
		}
	}()
	return errCh, nil
}

// Push sends the gatherer's metrics to a Pushgateway, grouped by run ID.
func Push(ctx context.Context, url, runID string, gatherer prometheus.Gatherer) error {
	if url == "" {
		return nil
	}
	pusher := push.New(url, DefaultJobName).
		Gatherer(gatherer).
		Grouping(LabelRunID, runID)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	ctrl.LoggerFrom(ctx).Info("Pushed metrics", "pushgateway", url, "runID", runID)
	return nil
}
