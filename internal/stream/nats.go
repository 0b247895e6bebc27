// Package stream carries live sample batches and estimates over NATS.
package stream

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/andresmejia3/vitals/internal/live"
	"github.com/andresmejia3/vitals/internal/rppg"
	"github.com/andresmejia3/vitals/internal/types"
	"github.com/nats-io/nats.go"
)

// Default subjects.
const (
	SamplesSubject   = "vitals.samples"
	EstimatesSubject = "vitals.estimates"
)

// Connect dials NATS and keeps reconnecting for the life of the process.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name("vitals-relay"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}

// DecodeSamples reads a batch of little-endian float32 samples.
func DecodeSamples(data []byte) ([]float64, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("sample batch of %d bytes is not a multiple of 4", len(data))
	}
	out := make([]float64, len(data)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return out, nil
}

// EncodeSamples is the inverse of DecodeSamples.
func EncodeSamples(samples []float64) []byte {
	out := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	return out
}

// Publisher is the part of *nats.Conn the relay writes to.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Relay feeds sample batches into one window and publishes an estimate after
// each batch once the window can be filtered.
type Relay struct {
	Window    *live.Window
	Estimator *rppg.Estimator
	Out       string
	Logger    *slog.Logger
}

// Handle processes one batch. It returns the published estimate, if any.
func (r *Relay) Handle(pub Publisher, data []byte) (*types.LiveEstimate, error) {
	samples, err := DecodeSamples(data)
	if err != nil {
		return nil, err
	}
	r.Window.Push(samples...)

	est, ok := r.Window.Estimate(r.Estimator)
	if !ok {
		return nil, nil
	}
	msg := EstimateMessage(est)
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := pub.Publish(r.Out, b); err != nil {
		return nil, fmt.Errorf("publish to %s: %w", r.Out, err)
	}
	return &msg, nil
}

// Run subscribes to subject and relays until ctx is done.
func (r *Relay) Run(ctx context.Context, nc *nats.Conn, subject string) error {
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		est, err := r.Handle(nc, msg.Data)
		if err != nil {
			r.Logger.Warn("dropping sample batch", "subject", subject, "error", err)
			return
		}
		if est != nil {
			r.Logger.Debug("estimate published", "bpm", est.BPM, "source", est.Source)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}

// EstimateMessage converts an estimate to its wire form.
func EstimateMessage(est rppg.Estimate) types.LiveEstimate {
	return types.LiveEstimate{
		RunID:          est.RunID.String(),
		Ts:             time.Now().UnixMilli(),
		BPM:            est.BPM,
		Source:         string(est.Source),
		FallbackReason: string(est.Reason),
		Samples:        est.Samples,
		Peaks:          len(est.Peaks),
	}
}
