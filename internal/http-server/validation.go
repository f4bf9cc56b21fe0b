package httpserver

import (
	"path/filepath"
	"strings"
)

// 25 MB is plenty for a voice message in any supported codec
const maxCaptureSize = 25 << 20

var allowedExtensions = map[string]bool{
	".opus": true,
	".ogg":  true,
	".mp3":  true,
	".m4a":  true,
	".wav":  true,
}

func validateCapture(filename string, size int64, durationMs int64) error {
	if filename == "" {
		return NewValidationError("Audio file is required")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" && !allowedExtensions[ext] {
		return NewValidationError("Unsupported audio format: " + ext)
	}

	if size <= 0 {
		return NewValidationError("Audio file is empty")
	}

	if size > maxCaptureSize {
		return NewValidationError("Audio file is too large")
	}

	if durationMs <= 0 {
		return NewValidationError("duration_ms must be a positive number")
	}

	return nil
}
