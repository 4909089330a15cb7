// Copyright 2025 Peanut Labs
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors exposed natively on /prometheus and mirrored in a
// simplified JSON form on /metrics.
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_gateway_requests_total",
			Help: "Total number of HTTP requests handled by the gateway",
		},
		[]string{"status"},
	)
	promDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_gateway_dispatch_duration_milliseconds",
			Help:    "Backend dispatch call duration in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 30000},
		},
		[]string{"agent_id", "status"},
	)
	promAuditAppendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_gateway_audit_append_failures_total",
			Help: "Total number of audit log append failures",
		},
	)
	promRateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_gateway_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"policy"},
	)
)

func init() {
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promDispatchDuration)
	prometheus.MustRegister(promAuditAppendFailures)
	prometheus.MustRegister(promRateLimitRejections)
}

// MetricsCollector keeps a small in-process rollup for the simplified
// JSON /metrics endpoint, alongside the native Prometheus collectors.
type MetricsCollector struct {
	mu          sync.Mutex
	startedAt   time.Time
	byStatus    map[string]int64
	totalCount  int64
	errorCount  int64
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startedAt: time.Now(), byStatus: make(map[string]int64)}
}

func (m *MetricsCollector) RecordRequest(status string, isError bool) {
	promRequestsTotal.WithLabelValues(status).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byStatus[status]++
	atomic.AddInt64(&m.totalCount, 1)
	if isError {
		atomic.AddInt64(&m.errorCount, 1)
	}
}

func (m *MetricsCollector) RecordDispatch(agentID string, success bool, latencyMS int64) {
	status := "success"
	if !success {
		status = "failure"
	}
	promDispatchDuration.WithLabelValues(agentID, status).Observe(float64(latencyMS))
}

func (m *MetricsCollector) RecordAuditFailure() {
	promAuditAppendFailures.Inc()
}

func (m *MetricsCollector) RecordRateLimitRejection(policy string) {
	promRateLimitRejections.WithLabelValues(policy).Inc()
}

type simpleMetricsSnapshot struct {
	UptimeSeconds float64          `json:"uptime_seconds"`
	TotalRequests int64            `json:"total_requests"`
	ErrorCount    int64            `json:"error_count"`
	ByStatus      map[string]int64 `json:"by_status"`
}

// ServeSimpleMetrics is the JSON counterpart to promhttp.Handler(), mirroring
// the teacher's dual /metrics + /prometheus surface (orchestrator/run.go).
func (m *MetricsCollector) ServeSimpleMetrics(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	snapshot := simpleMetricsSnapshot{
		UptimeSeconds: time.Since(m.startedAt).Seconds(),
		TotalRequests: atomic.LoadInt64(&m.totalCount),
		ErrorCount:    atomic.LoadInt64(&m.errorCount),
		ByStatus:      make(map[string]int64, len(m.byStatus)),
	}
	for k, v := range m.byStatus {
		snapshot.ByStatus[k] = v
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}
