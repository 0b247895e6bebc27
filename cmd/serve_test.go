package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/vitals/internal/predict"
	"github.com/andresmejia3/vitals/internal/rppg"
	"github.com/andresmejia3/vitals/internal/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPredictor struct {
	out predict.Output
	err error
}

func (s stubPredictor) Name() string { return "stub" }
func (s stubPredictor) Predict(float64) (predict.Output, error) { return s.out, s.err }

func sineSamples(freq, rate float64, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = 100 + 2*math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return x
}

func newTestServer(registry *predict.Registry) *server {
	return &server{
		registry:      registry,
		estimator:     &rppg.Estimator{Fallback: rppg.FixedFallback(77)},
		logger:        logger,
		windowSeconds: 20,
	}
}

func readyRegistry() *predict.Registry {
	return predict.NewRegistry(
		stubPredictor{out: predict.Output{Values: []float64{118.5, 76.4}}},
		stubPredictor{out: predict.Output{Values: []float64{71.6}}},
		stubPredictor{out: predict.Output{Label: "low"}},
	)
}

func postProcess(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProcessSuccess(t *testing.T) {
	h := newTestServer(readyRegistry()).routes()

	body, err := json.Marshal(types.ProcessRequest{RawSignal: sineSamples(1.2, 30, 300)})
	require.NoError(t, err)
	rec := postProcess(t, h, string(body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp types.ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 118, resp.Systolic)
	assert.Equal(t, 76, resp.Diastolic)
	assert.Equal(t, 72, resp.HeartRate)
	assert.Equal(t, "low", resp.Stress)
	assert.InDelta(t, 72.0, resp.CalculatedHR, 1.0)
	assert.Equal(t, "peaks", resp.Source)
	assert.Empty(t, resp.FallbackReason)
}

func TestProcessFallbackStillPredicts(t *testing.T) {
	h := newTestServer(readyRegistry()).routes()

	rec := postProcess(t, h, `{"raw_signal": [1, 2, 3, 4, 5]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp types.ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "fallback", resp.Source)
	assert.Equal(t, "signal_too_short", resp.FallbackReason)
	assert.Equal(t, 77.0, resp.CalculatedHR)
}

func TestProcessErrors(t *testing.T) {
	failing := predict.NewRegistry(
		stubPredictor{err: errors.New("boom")},
		stubPredictor{out: predict.Output{Values: []float64{70}}},
		stubPredictor{out: predict.Output{Label: "low"}},
	)

	tests := []struct {
		name     string
		registry *predict.Registry
		body     string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "models not loaded",
			registry: predict.NewRegistry(nil, nil, nil),
			body:     `{"raw_signal": [1, 2, 3]}`,
			wantCode: http.StatusInternalServerError,
			wantMsg:  "Models are not loaded on the server.",
		},
		{
			name:     "models checked before input",
			registry: predict.NewRegistry(nil, nil, nil),
			body:     `{}`,
			wantCode: http.StatusInternalServerError,
			wantMsg:  "Models are not loaded on the server.",
		},
		{
			name:     "missing signal",
			registry: readyRegistry(),
			body:     `{}`,
			wantCode: http.StatusBadRequest,
			wantMsg:  "No raw signal data provided.",
		},
		{
			name:     "empty signal",
			registry: readyRegistry(),
			body:     `{"raw_signal": []}`,
			wantCode: http.StatusBadRequest,
			wantMsg:  "No raw signal data provided.",
		},
		{
			name:     "malformed body",
			registry: readyRegistry(),
			body:     `{"raw_signal": [1, 2`,
			wantCode: http.StatusBadRequest,
			wantMsg:  "Invalid JSON body.",
		},
		{
			name:     "predictor failure",
			registry: failing,
			body:     `{"raw_signal": [1, 2, 3]}`,
			wantCode: http.StatusInternalServerError,
			wantMsg:  "Prediction failed.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postProcess(t, newTestServer(tt.registry).routes(), tt.body)
			require.Equal(t, tt.wantCode, rec.Code)

			var resp types.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, types.ErrorResponse{Status: "error", Message: tt.wantMsg}, resp)
		})
	}
}

func TestProcessRejectsOtherMethods(t *testing.T) {
	h := newTestServer(readyRegistry()).routes()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/process", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	for _, tt := range []struct {
		registry *predict.Registry
		want     int
	}{
		{readyRegistry(), http.StatusOK},
		{predict.NewRegistry(nil, nil, nil), http.StatusServiceUnavailable},
	} {
		rec := httptest.NewRecorder()
		newTestServer(tt.registry).routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, tt.want, rec.Code)
	}
}

func TestLiveWebsocket(t *testing.T) {
	ts := httptest.NewServer(newTestServer(readyRegistry()).routes())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	samples := sineSamples(1.2, 30, 300)
	// Too short to filter: no reply.
	require.NoError(t, conn.WriteJSON(types.LiveBatch{Samples: samples[:10], SampleRate: 30}))
	require.NoError(t, conn.WriteJSON(types.LiveBatch{Samples: samples[10:], SampleRate: 30}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got types.LiveEstimate
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 300, got.Samples)
	assert.Equal(t, "peaks", got.Source)
	assert.InDelta(t, 72.0, got.BPM, 1.5)
	assert.NotEmpty(t, got.RunID)
}

func TestLiveWebsocketBadMessage(t *testing.T) {
	ts := httptest.NewServer(newTestServer(readyRegistry()).routes())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var resp types.ErrorResponse
	require.NoError(t, json.NewDecoder(bytes.NewReader(data)).Decode(&resp))
	assert.Equal(t, "error", resp.Status)
}

func TestDefaultAddr(t *testing.T) {
	assert.Equal(t, ":5000", defaultAddr(func(string) string { return "" }))
	assert.Equal(t, ":8080", defaultAddr(func(k string) string {
		if k == "PORT" {
			return "8080"
		}
		return ""
	}))
}
