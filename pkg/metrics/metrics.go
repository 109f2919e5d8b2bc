package metrics

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nakabonne/tstorage"
	"github.com/pkg/errors"
)

var (
	mu       sync.RWMutex
	storage  tstorage.Storage
	counters sync.Map // name -> *int64
)

// InitMetrics opens the time-series store below workdir/data/metrics.
// Counters keep working in memory when it is never called.
func InitMetrics(workdir string) error {
	mu.Lock()
	defer mu.Unlock()
	if storage != nil {
		return nil
	}
	st, err := tstorage.NewStorage(
		tstorage.WithDataPath(filepath.Join(workdir, "data", "metrics")),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(30*24*time.Hour),
	)
	if err != nil {
		return errors.Wrap(err, "open metrics storage")
	}
	storage = st
	return nil
}

func insert(name string, value float64) {
	mu.RLock()
	st := storage
	mu.RUnlock()
	if st == nil {
		return
	}
	_ = st.InsertRows([]tstorage.Row{{
		Metric:    name,
		DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: value},
	}})
}

func counter(name string) *int64 {
	v, _ := counters.LoadOrStore(name, new(int64))
	return v.(*int64)
}

// Incr bumps a cumulative counter and stores the new value
func Incr(name string) int64 {
	val := atomic.AddInt64(counter(name), 1)
	insert(name, float64(val))
	return val
}

// GetCounter current in-process value of a counter
func GetCounter(name string) int64 {
	return atomic.LoadInt64(counter(name))
}

// SetGauge stores a point-in-time value
func SetGauge(name string, value int64) {
	atomic.StoreInt64(counter(name), value)
	insert(name, float64(value))
}

// Point is one stored sample
type Point struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Query returns samples of name in [start, end)
func Query(name string, start, end time.Time) ([]Point, error) {
	mu.RLock()
	st := storage
	mu.RUnlock()
	if st == nil {
		return nil, nil
	}
	points, err := st.Select(name, nil, start.Unix(), end.Unix())
	if errors.Is(err, tstorage.ErrNoDataPoints) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	result := make([]Point, 0, len(points))
	for _, p := range points {
		result = append(result, Point{Timestamp: p.Timestamp, Value: p.Value})
	}
	return result, nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if storage == nil {
		return nil
	}
	err := storage.Close()
	storage = nil
	return err
}
