package offload

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ben-mansor/muDCN-v2/internal/uerrors"
	"github.com/ben-mansor/muDCN-v2/pkg/ndn"
)

// fakeRunner records invocations and returns scripted results keyed by
// the program name, so tests never shell out to a real ip/bpftool.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	outputs map[string]string
	errs    map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	f.mu.Unlock()
	if err, ok := f.errs[name]; ok {
		return "", err
	}
	return f.outputs[name], nil
}

func (f *fakeRunner) callCount(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func newTestAdapter(run *fakeRunner) *Adapter {
	a := New(Config{Interface: "eth0", ProgramPath: "./ndn.o", MetricsEvery: 10 * time.Millisecond})
	a.run = run
	return a
}

func TestLoadAttachesAndStartsMetrics(t *testing.T) {
	run := newFakeRunner()
	a := newTestAdapter(run)

	require.NoError(t, a.Load(context.Background()))
	status, _ := a.Status()
	assert.Equal(t, StatusRunning, status)
	assert.Equal(t, 1, run.callCount("link set dev eth0"))

	require.NoError(t, a.Unload(context.Background()))
	status, _ = a.Status()
	assert.Equal(t, StatusNotLoaded, status)
}

func TestLoadFailureSetsFailedStatus(t *testing.T) {
	run := newFakeRunner()
	run.errs["ip"] = assert.AnError
	a := newTestAdapter(run)

	err := a.Load(context.Background())
	require.Error(t, err)
	var offErr *uerrors.OffloadError
	require.ErrorAs(t, err, &offErr)

	status, reason := a.Status()
	assert.Equal(t, StatusFailed, status)
	assert.NotEmpty(t, reason)
}

func TestAddToCSMirrorsEncodedData(t *testing.T) {
	run := newFakeRunner()
	a := newTestAdapter(run)

	err := a.AddToCS(context.Background(), ndn.NewData(ndn.ParseName("/a/b"), []byte("hi")))
	require.NoError(t, err)
	assert.Equal(t, 1, run.callCount("content_store"))
}

func TestClearCSFlushesMap(t *testing.T) {
	run := newFakeRunner()
	a := newTestAdapter(run)

	require.NoError(t, a.ClearCS(context.Background()))
	assert.Equal(t, 1, run.callCount("map flush pinned"))
}

func TestPollMetricsParsesBpftoolDump(t *testing.T) {
	run := newFakeRunner()
	run.outputs["bpftool"] = "key: 0 value: 42\nkey: 3 value: 7\nkey: 4 value: 2\n"
	a := newTestAdapter(run)

	m, err := a.pollMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), m.PacketsProcessed)
	assert.Equal(t, uint64(7), m.CacheHits)
	assert.Equal(t, uint64(2), m.CacheMisses)
}

func TestMetricsLoopPopulatesSnapshot(t *testing.T) {
	run := newFakeRunner()
	run.outputs["bpftool"] = "key: 1 value: 100\n"
	a := newTestAdapter(run)

	require.NoError(t, a.Load(context.Background()))
	defer a.Unload(context.Background())

	require.Eventually(t, func() bool {
		return a.Metrics().Interests == 100
	}, time.Second, 5*time.Millisecond)
}
