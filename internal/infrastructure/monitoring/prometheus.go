package monitoring

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// PrometheusHandler returns an http.Handler that serves Prometheus text format metrics.
// This avoids pulling in the full prometheus/client_golang dependency.
// Mount it at "/metrics" in your HTTP server.
func (m *Monitor) PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(m.metrics.StartTime).Seconds()

		lines := []struct {
			name string
			help string
			typ  string
			val  interface{}
		}{
			{"chatcore_messages_posted_total", "Total messages persisted", "counter", atomic.LoadUint64(&m.metrics.MessagesPosted)},
			{"chatcore_read_receipts_total", "Total read-receipt updates applied", "counter", atomic.LoadUint64(&m.metrics.ReadReceipts)},

			{"chatcore_auto_replies_total", "Total AI auto-responses posted", "counter", atomic.LoadUint64(&m.metrics.AutoReplies)},
			{"chatcore_fallback_replies_total", "Auto-responses that used the generic fallback template", "counter", atomic.LoadUint64(&m.metrics.FallbackReplies)},

			{"chatcore_retrievals_total", "Total knowledge retrievals", "counter", atomic.LoadUint64(&m.metrics.RetrievalsTotal)},
			{"chatcore_retrieval_timeouts_total", "Knowledge retrievals that exceeded their budget", "counter", atomic.LoadUint64(&m.metrics.RetrievalTimeouts)},
			{"chatcore_knowledge_syncs_total", "Total knowledge index rebuilds", "counter", atomic.LoadUint64(&m.metrics.SyncsTotal)},

			{"chatcore_events_fanned_out_total", "Room events pushed to live connections", "counter", atomic.LoadUint64(&m.metrics.EventsFannedOut)},
			{"chatcore_connected_clients", "Currently connected websocket clients", "gauge", atomic.LoadInt64(&m.metrics.ConnectedClients)},

			{"chatcore_requests_total", "Total HTTP requests processed", "counter", atomic.LoadUint64(&m.metrics.RequestsTotal)},
			{"chatcore_requests_failed_total", "HTTP requests that returned an error status", "counter", atomic.LoadUint64(&m.metrics.RequestsFailed)},

			{"chatcore_uptime_seconds", "Process uptime in seconds", "gauge", uptime},
			{"chatcore_goroutines", "Current number of goroutines", "gauge", runtime.NumGoroutine()},
			{"chatcore_memory_alloc_bytes", "Bytes of allocated heap objects", "gauge", memStats.Alloc},
		}

		for _, l := range lines {
			fmt.Fprintf(w, "# HELP %s %s\n", l.name, l.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", l.name, l.typ)
			fmt.Fprintf(w, "%s %v\n", l.name, l.val)
		}
	})
}
