package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresmejia3/vitals/internal/predict"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection holding videos and readings.
// A single connection is shared, so calls are serialized.
type Store struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// Reading is one persisted heart-rate estimate. VideoID is empty for readings
// that did not come from a file (API or live capture). Vitals is nil when no
// predictions were made.
type Reading struct {
	RunID          uuid.UUID
	VideoID        string
	VideoPath      string
	BPM            float64
	Source         string
	FallbackReason string
	SampleCount    int
	SampleRate     float64
	PeakCount      int
	Vitals         *predict.Vitals
	CreatedAt      time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			fps DOUBLE PRECISION NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS heart_rate_readings (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL UNIQUE,
			video_id TEXT REFERENCES video_metadata(id) ON DELETE CASCADE,
			bpm DOUBLE PRECISION NOT NULL,
			source TEXT NOT NULL,
			fallback_reason TEXT NOT NULL DEFAULT '',
			sample_count INT NOT NULL,
			sample_rate DOUBLE PRECISION NOT NULL,
			peak_count INT NOT NULL,
			systolic INT,
			diastolic INT,
			predicted_hr INT,
			stress TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS heart_rate_readings_video_id_idx ON heart_rate_readings (video_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.Close(ctx)
}

// EnsureVideoMetadata registers the video in the database. If it exists, it updates the timestamp
// and drops readings from earlier runs so a re-run does not duplicate them.
func (s *Store) EnsureVideoMetadata(ctx context.Context, videoID, path string, fps float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec(ctx, "DELETE FROM heart_rate_readings WHERE video_id = $1", videoID); err != nil {
		return err
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO video_metadata (id, path, fps, indexed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), path = EXCLUDED.path, fps = EXCLUDED.fps
	`, videoID, path, fps)
	return err
}

// InsertReading saves one estimate.
func (s *Store) InsertReading(ctx context.Context, r Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var videoID *string
	if r.VideoID != "" {
		videoID = &r.VideoID
	}
	var systolic, diastolic, predictedHR *int
	var stress *string
	if r.Vitals != nil {
		systolic, diastolic, predictedHR = &r.Vitals.Systolic, &r.Vitals.Diastolic, &r.Vitals.HeartRate
		stress = &r.Vitals.Stress
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO heart_rate_readings
			(run_id, video_id, bpm, source, fallback_reason, sample_count, sample_rate, peak_count,
			 systolic, diastolic, predicted_hr, stress)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.RunID, videoID, r.BPM, r.Source, r.FallbackReason, r.SampleCount, r.SampleRate, r.PeakCount,
		systolic, diastolic, predictedHR, stress)
	return err
}

// ListReadings returns the newest readings first. limit <= 0 returns all.
func (s *Store) ListReadings(ctx context.Context, limit int) ([]Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT r.run_id, COALESCE(r.video_id, ''), COALESCE(v.path, ''), r.bpm, r.source, r.fallback_reason,
			r.sample_count, r.sample_rate, r.peak_count, r.systolic, r.diastolic, r.predicted_hr, r.stress, r.created_at
		FROM heart_rate_readings r
		LEFT JOIN video_metadata v ON v.id = r.video_id
		ORDER BY r.created_at DESC, r.id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var r Reading
		var systolic, diastolic, predictedHR *int
		var stress *string
		if err := rows.Scan(&r.RunID, &r.VideoID, &r.VideoPath, &r.BPM, &r.Source, &r.FallbackReason,
			&r.SampleCount, &r.SampleRate, &r.PeakCount, &systolic, &diastolic, &predictedHR, &stress, &r.CreatedAt); err != nil {
			return nil, err
		}
		if systolic != nil && diastolic != nil && predictedHR != nil && stress != nil {
			r.Vitals = &predict.Vitals{Systolic: *systolic, Diastolic: *diastolic, HeartRate: *predictedHR, Stress: *stress}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS heart_rate_readings CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	return err
}
