package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncLaunch("ok")
	IncLaunch("duplicate")
	IncClear()
	SetActiveWatches(2)
	IncMinify("ok")
	ObserveMinifyDuration(0.02)
	IncMinifiedDelete("ok")
	SetCompilerUsage("/p/scss", 1.5, 4096)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"sasswatch_watch_launches_total":      false,
		"sasswatch_watch_clears_total":        false,
		"sasswatch_active_watches":            false,
		"sasswatch_minify_total":              false,
		"sasswatch_minify_duration_seconds":   false,
		"sasswatch_minified_deletes_total":    false,
		"sasswatch_compiler_cpu_percent":      false,
		"sasswatch_compiler_memory_rss_bytes": false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
	v, n := gathered(t, reg, "sasswatch_active_watches")
	assert.Equal(t, 1, n)
	assert.Equal(t, 2.0, v)
}

func TestHandlerServesMetrics(t *testing.T) {
	// Reset regOK gate to allow registration in this test regardless of previous tests.
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncLaunch("ok")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "sasswatch_watch_launches_total") {
		t.Fatalf("metrics output missing launches_total")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncLaunch("ok")
			IncMinify("error")
			IncClear()
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(watchClears))
	before, _ := gathered(t, reg, "sasswatch_watch_clears_total")
	IncLaunch("ok")
	IncClear()
	SetActiveWatches(5)
	IncMinify("ok")
	ObserveMinifyDuration(1.0)
	IncMinifiedDelete("error")
	SetCompilerUsage("d", 1, 1)
	ForgetCompiler("d")
	after, _ := gathered(t, reg, "sasswatch_watch_clears_total")
	assert.Equal(t, before, after)
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{})
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.False(t, regOK.Load())
}

type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}
func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }

func TestSampleUsage_Self(t *testing.T) {
	u, err := SampleUsage(context.Background(), os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), u.PID)
	assert.Greater(t, u.MemoryRSS, uint64(0))
}

func TestUsageCollector_ForgetsGoneDirs(t *testing.T) {
	reg := prometheus.NewRegistry()
	regOK.Store(false)
	require.NoError(t, Register(reg))
	compilerCPU.Reset()
	compilerMemory.Reset()

	pids := map[string]int{"/p/self": os.Getpid()}
	c := &UsageCollector{PIDs: func() map[string]int { return pids }}
	c.Collect(context.Background())
	_, n := gathered(t, reg, "sasswatch_compiler_memory_rss_bytes")
	assert.Equal(t, 1, n)

	pids = map[string]int{}
	c.Collect(context.Background())
	_, n = gathered(t, reg, "sasswatch_compiler_memory_rss_bytes")
	assert.Equal(t, 0, n)
}

// gathered returns the value of the first sample of a family and the
// number of samples it has.
func gathered(t *testing.T, g prometheus.Gatherer, name string) (float64, int) {
	t.Helper()
	mfs, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name || len(mf.GetMetric()) == 0 {
			continue
		}
		m := mf.GetMetric()[0]
		switch {
		case m.GetGauge() != nil:
			return m.GetGauge().GetValue(), len(mf.GetMetric())
		case m.GetCounter() != nil:
			return m.GetCounter().GetValue(), len(mf.GetMetric())
		}
		return 0, len(mf.GetMetric())
	}
	return 0, 0
}
