package types

// FrameTask represents a single decoded-from-ffmpeg frame sent to an engine.
type FrameTask struct {
	Index int
	Data  []byte
}

// SampleResult is what an engine returns for one frame. OK is false when the
// frame produced no sample (no face, empty forehead, undecodable JPEG).
type SampleResult struct {
	Index int
	Value float64
	OK    bool
}

// ProcessRequest is the body of POST /process.
type ProcessRequest struct {
	RawSignal  []float64 `json:"raw_signal"`
	SampleRate float64   `json:"sample_rate,omitempty"`
}

// ProcessResponse is returned by POST /process on success.
type ProcessResponse struct {
	Status         string  `json:"status"`
	Systolic       int     `json:"systolic"`
	Diastolic      int     `json:"diastolic"`
	HeartRate      int     `json:"heartRate"`
	Stress         string  `json:"stress"`
	CalculatedHR   float64 `json:"calculatedHr"`
	Source         string  `json:"source"`
	FallbackReason string  `json:"fallbackReason,omitempty"`
}

// ErrorResponse matches the shape clients already parse on failure.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// LiveBatch is one websocket message from a capturing client.
type LiveBatch struct {
	Samples    []float64 `json:"samples"`
	SampleRate float64   `json:"sample_rate,omitempty"`
}

// LiveEstimate is pushed to live clients and relay subscribers.
type LiveEstimate struct {
	RunID          string  `json:"runId"`
	Ts             int64   `json:"ts"`
	BPM            float64 `json:"bpm"`
	Source         string  `json:"source"`
	FallbackReason string  `json:"fallbackReason,omitempty"`
	Samples        int     `json:"samples"`
	Peaks          int     `json:"peaks"`
}
