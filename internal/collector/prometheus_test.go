package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/llm-d/llm-d-stress-controller/internal/config"
)

var _ = Describe("PrometheusSource", func() {
	var (
		server   *httptest.Server
		mu       sync.Mutex
		queries  []string
		authSeen []string
	)

	BeforeEach(func() {
		queries, authSeen = nil, nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			q := r.Form.Get("query")
			mu.Lock()
			queries = append(queries, q)
			authSeen = append(authSeen, r.Header.Get("Authorization"))
			mu.Unlock()

			w.Header().Set("Content-Type", "application/json")
			switch q {
			case "cpu_query":
				_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[` +
					`{"metric":{"instance":"a"},"value":[1700000000,"40"]},` +
					`{"metric":{"instance":"b"},"value":[1700000000,"60"]}]}}`))
			case "temp_query":
				_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[` +
					`{"metric":{},"value":[1700000000,"71.5"]}]}}`))
			case "empty_query":
				_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[]}}`))
			default:
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"status":"error","errorType":"bad_data","error":"parse error"}`))
			}
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("should average vector results and leave unconfigured metrics unavailable", func() {
		src, err := NewPrometheusSource(config.PrometheusConfig{
			URL:                  server.URL,
			CPUQuery:             "cpu_query",
			AcceleratorTempQuery: "temp_query",
		})
		Expect(err).NotTo(HaveOccurred())

		reading, err := src.Collect(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(reading.CPUPercent).To(HaveValue(BeNumerically("~", 50.0, 1e-9)))
		Expect(reading.AcceleratorTempCelsius).To(HaveValue(BeNumerically("~", 71.5, 1e-9)))
		Expect(reading.MemoryPercent).To(BeNil())
		Expect(reading.AcceleratorUtilPercent).To(BeNil())
		Expect(queries).To(ConsistOf("cpu_query", "temp_query"))
	})

	It("should report failing and empty queries while keeping the others", func() {
		src, err := NewPrometheusSource(config.PrometheusConfig{
			URL:                  server.URL,
			CPUQuery:             "cpu_query",
			MemoryQuery:          "broken(",
			AcceleratorUtilQuery: "empty_query",
		})
		Expect(err).NotTo(HaveOccurred())

		reading, err := src.Collect(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring(string(MetricMemoryPercent)))
		Expect(err.Error()).To(ContainSubstring(string(MetricAcceleratorUtilPercent)))
		Expect(reading.CPUPercent).To(HaveValue(BeNumerically("~", 50.0, 1e-9)))
		Expect(reading.MemoryPercent).To(BeNil())
	})

	It("should send the bearer token from the token file", func() {
		tokenFile := filepath.Join(GinkgoT().TempDir(), "token")
		Expect(os.WriteFile(tokenFile, []byte("s3cret\n"), 0o600)).To(Succeed())

		src, err := NewPrometheusSource(config.PrometheusConfig{
			URL:       server.URL,
			TokenFile: tokenFile,
			CPUQuery:  "cpu_query",
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = src.Collect(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(authSeen).To(ConsistOf("Bearer s3cret"))
	})

	It("should require a url", func() {
		_, err := NewPrometheusSource(config.PrometheusConfig{CPUQuery: "up"})
		Expect(err).To(HaveOccurred())
	})
})
