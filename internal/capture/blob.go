package capture

import (
	"bytes"
	"encoding/hex"
	"io"

	"lukechampine.com/blake3"
)

// Container formats understood by the pipeline.
const (
	MIMEWebM = "audio/webm"
	MIMEWAV  = "audio/wav"
	MIMEOgg  = "audio/ogg"
	MIMEMPEG = "audio/mpeg"

	// MIMEPCM is raw little-endian 16-bit PCM. It is wrapped in WAV on Stop.
	MIMEPCM = "audio/L16"
)

// Format describes captured audio.
type Format struct {
	MIME       string
	SampleRate int
	Channels   int
}

// IsPCM reports whether the format is raw PCM.
func (f Format) IsPCM() bool { return f.MIME == MIMEPCM }

func (f Format) extension() string {
	switch f.MIME {
	case MIMEWebM:
		return ".webm"
	case MIMEWAV:
		return ".wav"
	case MIMEOgg:
		return ".ogg"
	case MIMEMPEG:
		return ".mp3"
	default:
		return ".bin"
	}
}

// Blob is the immutable result of one recording session.
type Blob struct {
	data   []byte
	format Format
}

// NewBlob copies data into a Blob of the given format.
func NewBlob(data []byte, format Format) Blob {
	return Blob{data: bytes.Clone(data), format: format}
}

// IsZero reports whether b came from a Stop without a session.
func (b Blob) IsZero() bool { return b.format.MIME == "" && b.data == nil }

// Len returns the blob size in bytes.
func (b Blob) Len() int { return len(b.data) }

// Format returns the container format.
func (b Blob) Format() Format { return b.format }

// MIME returns the container MIME type.
func (b Blob) MIME() string { return b.format.MIME }

// Filename is the upload filename, e.g. recording.webm.
func (b Blob) Filename() string { return "recording" + b.format.extension() }

// Reader returns a reader over the blob bytes.
func (b Blob) Reader() io.Reader { return bytes.NewReader(b.data) }

// Bytes returns a copy of the blob bytes.
func (b Blob) Bytes() []byte { return bytes.Clone(b.data) }

// Digest returns the hex blake3 digest of the blob bytes.
func (b Blob) Digest() string { return Digest(b.data) }

// Digest returns the hex blake3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
