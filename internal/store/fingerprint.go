package store

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Fingerprint identifies one specific version of a file's bytes via
// filesystem metadata, without reading content. Two fingerprints are
// equal iff all three fields match exactly; a stored entry whose
// fingerprint differs from the live file is treated as absent.
type Fingerprint struct {
	PathNorm  string
	MtimeNS   int64
	SizeBytes int64
}

// Equal reports whether two fingerprints match exactly.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f == other
}

// FingerprintPath stats the file and builds its current fingerprint.
func FingerprintPath(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to stat file: %w", err)
	}
	return Fingerprint{
		PathNorm:  NormalizePath(path),
		MtimeNS:   info.ModTime().UnixNano(),
		SizeBytes: info.Size(),
	}, nil
}

// NormalizePath produces the canonical form of a path used as cache
// identity: absolute, cleaned, NFC-normalized, and case-folded on
// case-insensitive filesystems.
func NormalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	normalized := norm.NFC.String(abs)
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		normalized = strings.ToLower(normalized)
	}
	return normalized
}
