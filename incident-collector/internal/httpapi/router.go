package httpapi

import (
	"net/http"

	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/metrics"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter 注册全部路由，返回带访问日志与 panic 恢复的处理器
func NewRouter(h *IncidentHandler, m *metrics.Metrics, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(m.Middleware)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/incidents", h.Create).Methods("POST")
	api.HandleFunc("/incidents", h.List).Methods("GET")
	// export 需在 {id} 之前注册
	api.HandleFunc("/incidents/export", h.Export).Methods("GET")
	api.HandleFunc("/incidents/{id}", h.Get).Methods("GET")

	r.HandleFunc("/checking", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Server is up and running!!!"))
	}).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	}).Methods("GET")
	r.Handle("/metrics", m.Handler()).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, Fail("not found"))
	})

	stdLog := zap.NewStdLog(logger.Named("http"))
	logged := handlers.LoggingHandler(stdLog.Writer(), r)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(stdLog),
		handlers.PrintRecoveryStack(true),
	)(logged)
}
