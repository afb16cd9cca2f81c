package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/Dhoini/fitness-billing-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PendingFunc возвращает число фоновых задач сервиса (события Kafka, письма), еще не завершенных.
type PendingFunc func() int64

// RuntimeMetrics - состояние процесса биллинга. Очередь фоновых задач растет,
// когда Kafka или SMTP отвечают медленно, и должна опустошаться к остановке.
type RuntimeMetrics interface {
	WatchBackground(service string, pending PendingFunc)
	Sample()
	Run(ctx context.Context, interval time.Duration)
	Stop()
}

type runtimeMetrics struct {
	log        *logger.Logger
	goroutines prometheus.Gauge
	heapInUse  prometheus.Gauge
	heapSys    prometheus.Gauge
	gcCycles   prometheus.Counter
	pending    *prometheus.GaugeVec

	mu      sync.Mutex
	sources map[string]PendingFunc
	seenGC  uint32

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRuntimeMetrics регистрирует метрики процесса в registry.
func NewRuntimeMetrics(registry prometheus.Registerer, log *logger.Logger) RuntimeMetrics {
	f := promauto.With(registry)
	return &runtimeMetrics{
		log: log,
		goroutines: f.NewGauge(prometheus.GaugeOpts{
			Name: "billing_runtime_goroutines",
			Help: "Goroutines in the billing process",
		}),
		heapInUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "billing_runtime_heap_inuse_bytes",
			Help: "Heap bytes in use",
		}),
		heapSys: f.NewGauge(prometheus.GaugeOpts{
			Name: "billing_runtime_heap_sys_bytes",
			Help: "Heap bytes obtained from the OS",
		}),
		gcCycles: f.NewCounter(prometheus.CounterOpts{
			Name: "billing_runtime_gc_cycles_total",
			Help: "Completed GC cycles",
		}),
		pending: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "billing_background_tasks_pending",
			Help: "Post-commit background tasks (event publishing, emails) not finished yet",
		}, []string{"service"}),
		sources: make(map[string]PendingFunc),
		stopCh:  make(chan struct{}),
	}
}

// WatchBackground подключает источник очереди фоновых задач сервиса.
func (m *runtimeMetrics) WatchBackground(service string, pending PendingFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[service] = pending
}

// Sample снимает один замер.
func (m *runtimeMetrics) Sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.heapInUse.Set(float64(ms.HeapInuse))
	m.heapSys.Set(float64(ms.HeapSys))

	m.mu.Lock()
	defer m.mu.Unlock()
	// NumGC монотонен, счетчик получает только прирост
	if ms.NumGC > m.seenGC {
		m.gcCycles.Add(float64(ms.NumGC - m.seenGC))
		m.seenGC = ms.NumGC
	}
	for service, pending := range m.sources {
		m.pending.WithLabelValues(service).Set(float64(pending()))
	}
}

// Run снимает замеры с интервалом до отмены ctx или Stop.
func (m *runtimeMetrics) Run(ctx context.Context, interval time.Duration) {
	m.Sample()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sample()
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			}
		}
	}()
	m.log.Infow("Runtime metrics sampling started", "interval", interval)
}

func (m *runtimeMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.log.Infow("Runtime metrics sampling stopped")
	})
}
