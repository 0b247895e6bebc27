package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/andresmejia3/vitals/internal/live"
	"github.com/andresmejia3/vitals/internal/predict"
	"github.com/andresmejia3/vitals/internal/rppg"
	"github.com/andresmejia3/vitals/internal/store"
	"github.com/andresmejia3/vitals/internal/stream"
	"github.com/andresmejia3/vitals/internal/types"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

const maxRequestBytes = 8 << 20

var (
	serveAddr   string
	serveModels string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the /process API and the live-capture websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", defaultAddr(os.Getenv), "HTTP listen address (default :5000 or :$PORT)")
	serveCmd.Flags().StringVar(&serveModels, "models", "", "Directory with bp/hr/stress model files (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func defaultAddr(getenv func(string) string) string {
	if port := getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":5000"
}

func runServe(ctx context.Context) error {
	if serveModels == "" {
		serveModels = cfg.ModelsDir
	}

	// Models are loaded once. A failure leaves the server up but not ready.
	registry, err := predict.Load(serveModels)
	if err != nil {
		logger.Error("failed to load models", "dir", serveModels, "error", err)
		registry = predict.NewRegistry(nil, nil, nil)
	} else {
		logger.Info("models loaded", "dir", serveModels)
	}

	srv := &server{
		registry:      registry,
		estimator:     newEstimator(cfg.SmoothWindow),
		store:         DB,
		logger:        logger,
		windowSeconds: cfg.LiveWindowSeconds,
	}
	httpServer := &http.Server{Addr: serveAddr, Handler: srv.routes()}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "🌐 Listening on %s\n", serveAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fail("HTTP server failed", err, nil)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fail("HTTP server shutdown failed", err, nil)
	}
	fmt.Fprintln(os.Stderr, "🛑 Server stopped")
	return nil
}

type server struct {
	registry      *predict.Registry
	estimator     *rppg.Estimator
	store         *store.Store
	logger        *slog.Logger
	windowSeconds float64
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /process", s.handleProcess)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleLive)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode json response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Status: "error", Message: msg})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !s.registry.Ready() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"ready": s.registry.Ready()})
}

func (s *server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if !s.registry.Ready() {
		writeError(w, http.StatusInternalServerError, "Models are not loaded on the server.")
		return
	}

	var req types.ProcessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if len(req.RawSignal) == 0 {
		writeError(w, http.StatusBadRequest, "No raw signal data provided.")
		return
	}

	est := s.estimator.EstimateSamples(req.RawSignal, req.SampleRate)
	vitals, err := s.registry.Predict(est.BPM)
	if err != nil {
		s.logger.Error("prediction failed", "run", est.RunID, "bpm", est.BPM, "error", err)
		writeError(w, http.StatusInternalServerError, "Prediction failed.")
		return
	}

	if s.store != nil {
		if err := s.store.InsertReading(r.Context(), newReading(est, "", &vitals)); err != nil {
			s.logger.Warn("reading not persisted", "run", est.RunID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, types.ProcessResponse{
		Status:         "success",
		Systolic:       vitals.Systolic,
		Diastolic:      vitals.Diastolic,
		HeartRate:      vitals.HeartRate,
		Stress:         vitals.Stress,
		CalculatedHR:   est.BPM,
		Source:         string(est.Source),
		FallbackReason: string(est.Reason),
	})
}

// handleLive keeps one recent window per connection and answers every batch
// with an estimate once the window can be filtered.
func (s *server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	window := live.NewWindow(s.windowSeconds, rppg.DefaultSampleRate, s.logger)
	for {
		var batch types.LiveBatch
		if err := conn.ReadJSON(&batch); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				_ = conn.WriteJSON(types.ErrorResponse{Status: "error", Message: "Invalid JSON message."})
				continue
			}
			return
		}
		if batch.SampleRate > 0 {
			window.SetRate(batch.SampleRate)
		}
		window.Push(batch.Samples...)

		est, ok := window.Estimate(s.estimator)
		if !ok {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteJSON(stream.EstimateMessage(est)); err != nil {
			return
		}
	}
}
