package store

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
)

const (
	defaultScalarBucketMS = 50
	defaultHopMS          = 40
	defaultBandCount      = 48
)

// ScalarParams define cache identity for loudness envelope analysis.
type ScalarParams struct {
	BucketMS int `json:"bucket_ms"`
}

// DefaultScalarParams returns the envelope parameters used by playback.
func DefaultScalarParams() ScalarParams {
	return ScalarParams{BucketMS: defaultScalarBucketMS}
}

// BeatParams define cache identity for beat/onset analysis.
type BeatParams struct {
	HopMS    int    `json:"hop_ms"`
	Analyzer string `json:"analyzer"`
}

// DefaultBeatParams returns the beat parameters used by playback.
func DefaultBeatParams() BeatParams {
	return BeatParams{HopMS: defaultHopMS, Analyzer: "native"}
}

// SpectrumParams define cache identity for spectral-band analysis.
type SpectrumParams struct {
	BandCount int `json:"band_count"`
	HopMS     int `json:"hop_ms"`
}

// DefaultSpectrumParams returns the spectrum parameters used by playback.
func DefaultSpectrumParams() SpectrumParams {
	return SpectrumParams{BandCount: defaultBandCount, HopMS: defaultHopMS}
}

// WaveformParams define cache identity for waveform min/max proxies.
type WaveformParams struct {
	BucketMS int `json:"bucket_ms"`
}

// DefaultWaveformParams returns the waveform parameters used by playback.
func DefaultWaveformParams() WaveformParams {
	return WaveformParams{BucketMS: defaultScalarBucketMS}
}

// hashParams serializes analysis parameters to canonical JSON (sorted
// keys, no whitespace) and hashes it. The hash keys cache entries, so the
// serialization must be byte-stable across runs and field orderings.
func HashParams(params any) (paramsJSON string, paramsHash string, err error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal params: %w", err)
	}

	// Round-trip through a map so encoding/json emits keys sorted.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", "", fmt.Errorf("failed to canonicalize params: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", "", fmt.Errorf("failed to canonicalize params: %w", err)
	}

	sum := sha1.Sum(canonical)
	return string(canonical), fmt.Sprintf("%x", sum), nil
}
