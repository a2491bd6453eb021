package audio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrValidation marks an asset whose type tag is outside the allow-list.
	ErrValidation = errors.New("unsupported audio type")

	// ErrDecode marks audio bytes that could not be decoded.
	ErrDecode = errors.New("audio decode failed")
)

// MIME types accepted for audio input
const (
	TypeMPEG = "audio/mpeg"
	TypeWAV  = "audio/wav"
)

// Asset is a user-selected audio file. It is immutable once selected apart
// from Duration, which is filled in after a successful decode.
type Asset struct {
	Name     string
	Type     string
	Data     []byte
	Duration time.Duration
}

// ValidateType checks mimeType against the audio allow-list.
func ValidateType(mimeType string) error {
	switch mimeType {
	case TypeMPEG, TypeWAV:
		return nil
	default:
		return fmt.Errorf("%w: %q (use MP3 or WAV)", ErrValidation, mimeType)
	}
}

// Validate checks the asset's declared type.
func (a *Asset) Validate() error {
	return ValidateType(a.Type)
}

// TypeFromName infers a MIME type from a file extension. Unknown extensions
// return an empty string, which fails validation.
func TypeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return TypeMPEG
	case ".wav", ".wave":
		return TypeWAV
	default:
		return ""
	}
}
