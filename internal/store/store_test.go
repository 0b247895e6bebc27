package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/andresmejia3/vitals/internal/predict"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("vitals_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Skipf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	if err := s.EnsureVideoMetadata(ctx, "vid_123", "/tmp/video.mp4", 29.97); err != nil {
		t.Fatalf("EnsureVideoMetadata failed: %v", err)
	}

	fromVideo := Reading{
		RunID:       uuid.New(),
		VideoID:     "vid_123",
		BPM:         72.0,
		Source:      "peaks",
		SampleCount: 300,
		SampleRate:  29.97,
		PeakCount:   12,
		Vitals:      &predict.Vitals{Systolic: 120, Diastolic: 78, HeartRate: 72, Stress: "low"},
	}
	if err := s.InsertReading(ctx, fromVideo); err != nil {
		t.Fatalf("InsertReading failed: %v", err)
	}

	// API readings have no video and may be fallbacks without predictions.
	fromAPI := Reading{
		RunID:          uuid.New(),
		BPM:            83.2,
		Source:         "fallback",
		FallbackReason: "too_few_peaks",
		SampleCount:    90,
		SampleRate:     30,
	}
	if err := s.InsertReading(ctx, fromAPI); err != nil {
		t.Fatalf("InsertReading (no video) failed: %v", err)
	}

	if err := s.InsertReading(ctx, fromAPI); err == nil {
		t.Error("Expected duplicate run ID to be rejected")
	}

	readings, err := s.ListReadings(ctx, 0)
	if err != nil {
		t.Fatalf("ListReadings failed: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("Expected 2 readings, got %d", len(readings))
	}

	byRun := map[uuid.UUID]Reading{}
	for _, r := range readings {
		byRun[r.RunID] = r
	}
	got := byRun[fromVideo.RunID]
	if got.VideoPath != "/tmp/video.mp4" || got.PeakCount != 12 || got.Vitals == nil || *got.Vitals != *fromVideo.Vitals {
		t.Errorf("unexpected video reading %+v", got)
	}
	got = byRun[fromAPI.RunID]
	if got.VideoID != "" || got.Vitals != nil || got.FallbackReason != "too_few_peaks" {
		t.Errorf("unexpected API reading %+v", got)
	}

	limited, err := s.ListReadings(ctx, 1)
	if err != nil {
		t.Fatalf("ListReadings(limit) failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 reading with limit, got %d", len(limited))
	}

	// Re-registering the video clears its old readings only.
	if err := s.EnsureVideoMetadata(ctx, "vid_123", "/tmp/video.mp4", 29.97); err != nil {
		t.Fatalf("EnsureVideoMetadata (again) failed: %v", err)
	}
	readings, err = s.ListReadings(ctx, 0)
	if err != nil {
		t.Fatalf("ListReadings failed: %v", err)
	}
	if len(readings) != 1 || readings[0].RunID != fromAPI.RunID {
		t.Errorf("Expected only the API reading to remain, got %+v", readings)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListReadings(ctx, 0); err == nil {
		t.Error("Expected query to fail after tables were dropped")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
