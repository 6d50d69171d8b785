package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/api"
	promapi "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/llm-d/llm-d-stress-controller/internal/config"
	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

// PrometheusSource evaluates one instant PromQL query per metric. Vector
// results with several series are averaged.
type PrometheusSource struct {
	prom    promapi.API
	queries map[MetricName]string
	timeout time.Duration
	now     func() time.Time
}

// NewPrometheusSource creates a source from cfg. Metrics without a query are
// left unavailable.
func NewPrometheusSource(cfg config.PrometheusConfig) (*PrometheusSource, error) {
	if cfg.URL == "" {
		return nil, errors.New("prometheus url must be set")
	}
	token, err := cfg.ReadToken()
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(api.Config{
		Address: cfg.URL,
		RoundTripper: &bearerAuthRoundTripper{
			parent: api.DefaultRoundTripper,
			token:  token,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultPromTimeout
	}

	queries := make(map[MetricName]string)
	for metric, q := range map[MetricName]string{
		MetricCPUPercent:             cfg.CPUQuery,
		MetricMemoryPercent:          cfg.MemoryQuery,
		MetricAcceleratorUtilPercent: cfg.AcceleratorUtilQuery,
		MetricAcceleratorTempCelsius: cfg.AcceleratorTempQuery,
	} {
		if q != "" {
			queries[metric] = q
		}
	}

	return &PrometheusSource{
		prom:    promapi.NewAPI(client),
		queries: queries,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// Name returns "prometheus".
func (p *PrometheusSource) Name() string {
	return "prometheus"
}

// Collect runs every configured query.
func (p *PrometheusSource) Collect(ctx context.Context) (interfaces.ResourceReading, error) {
	var reading interfaces.ResourceReading
	var errs []error

	for _, metric := range AllMetrics {
		query, ok := p.queries[metric]
		if !ok {
			continue
		}
		v, err := p.query(ctx, query)
		if err != nil {
			errs = append(errs, fmt.Errorf("prometheus query for %s failed: %w", metric, err))
			continue
		}
		setValue(&reading, metric, v)
	}
	return reading, errors.Join(errs...)
}

func (p *PrometheusSource) query(ctx context.Context, query string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	value, _, err := p.prom.Query(ctx, query, p.now())
	if err != nil {
		return 0, err
	}
	switch v := value.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, errors.New("empty result")
		}
		var sum float64
		for _, s := range v {
			sum += float64(s.Value)
		}
		return sum / float64(len(v)), nil
	case *model.Scalar:
		return float64(v.Value), nil
	default:
		return 0, fmt.Errorf("unexpected result type %T", value)
	}
}

func setValue(r *interfaces.ResourceReading, metric MetricName, v float64) {
	switch metric {
	case MetricCPUPercent:
		r.CPUPercent = &v
	case MetricMemoryPercent:
		r.MemoryPercent = &v
	case MetricAcceleratorUtilPercent:
		r.AcceleratorUtilPercent = &v
	case MetricAcceleratorTempCelsius:
		r.AcceleratorTempCelsius = &v
	}
}

type bearerAuthRoundTripper struct {
	parent http.RoundTripper
	token  string
}

func (rt *bearerAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+rt.token)
	}
	parent := rt.parent
	if parent == nil {
		parent = http.DefaultTransport
	}
	return parent.RoundTrip(req)
}
