package observability

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthChecker manages health checks for both gRPC and HTTP, and serves
// metrics next to /healthz.
type HealthChecker struct {
	grpcHealth *health.Server
	httpServer *http.Server
	metrics    http.Handler
	logger     *zap.Logger
	mu         sync.RWMutex
	ready      bool
	kafkaReady bool
	usesKafka  bool
}

// NewHealthChecker creates a new health checker. metrics may be nil.
func NewHealthChecker(logger *zap.Logger, metrics http.Handler) *HealthChecker {
	return &HealthChecker{
		grpcHealth: health.NewServer(),
		metrics:    metrics,
		logger:     logger,
		ready:      true,
	}
}

// RegisterGRPC registers the health service with the gRPC server
func (h *HealthChecker) RegisterGRPC(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.grpcHealth)
	h.mu.Lock()
	h.publishLocked()
	h.mu.Unlock()
}

// Handler returns the HTTP handler serving /healthz and /metrics.
func (h *HealthChecker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealthz)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
	return mux
}

// StartHTTPServer starts the HTTP health check server
func (h *HealthChecker) StartHTTPServer(addr string) error {
	h.mu.Lock()
	h.httpServer = &http.Server{
		Addr:    addr,
		Handler: h.Handler(),
	}
	srv := h.httpServer
	h.mu.Unlock()

	h.logger.Info("starting HTTP health server", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// SetNotReady reports NOT_READY on both HTTP and gRPC from now on. Call it
// as soon as shutdown begins; the servers keep answering until Shutdown.
func (h *HealthChecker) SetNotReady() {
	h.mu.Lock()
	h.ready = false
	h.publishLocked()
	h.mu.Unlock()
}

// Shutdown marks the service not ready and stops the HTTP server
func (h *HealthChecker) Shutdown(ctx context.Context) error {
	h.SetNotReady()

	h.mu.RLock()
	srv := h.httpServer
	h.mu.RUnlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// SetKafkaReady sets the Kafka consumer readiness status
func (h *HealthChecker) SetKafkaReady(ready bool) {
	h.mu.Lock()
	h.kafkaReady = ready
	h.usesKafka = true
	h.publishLocked()
	h.mu.Unlock()
}

// Healthy reports whether the service is ready and, when Kafka is in use,
// the consumer is running.
func (h *HealthChecker) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.healthyLocked()
}

func (h *HealthChecker) healthyLocked() bool {
	return h.ready && (!h.usesKafka || h.kafkaReady)
}

// publishLocked pushes the current state to the gRPC health service.
// h.mu must be held for writing so updates are published in order.
func (h *HealthChecker) publishLocked() {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if h.healthyLocked() {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.grpcHealth.SetServingStatus("", status)
}

func (h *HealthChecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.Healthy() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT_READY"))
	}
}
