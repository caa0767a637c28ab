// Package io provides input/output utilities for streaming data ingestion.
package io

import "context"

// Reader is the interface for reading data from various sources.
type Reader interface {
	// Read returns the complete dataset.
	Read() ([][]float64, error)

	// Stream returns a channel of samples for real-time processing.
	// The channel is closed when the source is exhausted or ctx is done.
	Stream(ctx context.Context) (<-chan []float64, error)

	// Close releases resources.
	Close() error
}

// FeatureNamer is implemented by sources that know the names of the
// features they produce.
type FeatureNamer interface {
	// FeatureNames returns the names of extracted features.
	FeatureNames() []string
}

// Writer is the interface for writing detection results.
type Writer interface {
	// Write outputs a single result.
	Write(result Result) error

	// WriteAll outputs multiple results.
	WriteAll(results []Result) error

	// Close flushes and releases resources.
	Close() error
}

// Result represents a scored sample.
type Result struct {
	Index     int64          `json:"index"`
	Timestamp int64          `json:"timestamp"`
	Score     float64        `json:"score"`
	Features  []float64      `json:"features,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
