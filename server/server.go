package server

import (
	"context"
	"net/http"
	"time"

	"MTCPlayer/config"
	"MTCPlayer/logger"

	"github.com/gorilla/mux"
)

// NewRouter wires the relay routes.
func NewRouter(h *PartyHandler) *mux.Router {
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/party", h.HandleWebSocket).Methods(http.MethodGet)
	router.HandleFunc("/api/party/{room}/invite", h.HandleInvite).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/api/party/{room}/peers", h.HandlePeers).Methods(http.MethodGet)
	router.HandleFunc("/media/{key:.+}", h.HandleMedia).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "rooms": h.hub.RoomCount()})
	}).Methods(http.MethodGet)

	return router
}

// Start runs the relay until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, cfg *config.Config, presence PresenceRecorder, media MediaLinker) error {
	hub := NewHub(presence)
	go hub.Run()
	defer hub.Stop()

	handler := NewPartyHandler(hub, []byte(cfg.RelaySecret), media)
	if len(cfg.RelaySecret) == 0 {
		logger.Warn("RELAY_SECRET not set, party invites are not verified")
	}

	// 设置服务器超时（WebSocket 连接由读写协程自行管理超时）
	srv := &http.Server{
		Addr:        cfg.RelayAddr,
		Handler:     NewRouter(handler),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("party relay starting", logger.String("addr", cfg.RelayAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down relay...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Relay stopped")
	return nil
}
