package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/pinkv/pkg/pinned"
)

var _ pinned.Observer = (*Metrics)(nil)

func TestMetrics_PinLifecycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Pinned()
	m.Pinned()
	m.Released(time.Millisecond)
	m.ReleaseFailed()
	m.Leaked()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pinsAcquired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pinsReleased))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pinsOutstanding))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pinReleaseErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pinsLeaked))
}

func TestMetrics_ObservesTracker(t *testing.T) {
	m := New(prometheus.NewRegistry())
	tr := pinned.NewTracker("metrics-test", pinned.WithObserver(m))

	b, err := tr.Acquire()
	require.NoError(t, err)
	s := pinned.Adopt(staticNative("v"), b)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pinsOutstanding))

	s.Close()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.pinsOutstanding))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pinsReleased))
}

func TestMetrics_Reads(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRead("pebble", ReadFound)
	m.RecordRead("pebble", ReadAbsent)
	m.RecordRead("pebble", ReadAbsent)
	m.RecordDBOperation("put", true)
	m.RecordDBOperation("put", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.readsTotal.WithLabelValues("pebble", ReadFound)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.readsTotal.WithLabelValues("pebble", ReadAbsent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues("put", statusError)))
}

func TestMetrics_InstrumentHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	handler := m.InstrumentHandler("GET", "/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/test", "418")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpRequestsInFlight.WithLabelValues("GET", "/test")))
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) }, "duplicate registration must fail loudly")
}

type staticNative string

func (s staticNative) Value() []byte { return []byte(s) }
func (s staticNative) Release() error { return nil }
