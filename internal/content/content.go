// Package content defines the clipboard payload model shared by the backends,
// the history store and the injector, and computes content fingerprints used
// for deduplication.
package content

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"image/gif"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
)

// Kind tags the variant held by a Content.
type Kind uint8

const (
	Text Kind = iota + 1
	Image
	AnimatedImage
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Image:
		return "image"
	case AnimatedImage:
		return "animated-image"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "text":
		*k = Text
	case "image":
		*k = Image
	case "animated-image":
		*k = AnimatedImage
	default:
		return fmt.Errorf("unknown content kind %q", b)
	}
	return nil
}

// MIMEText is the canonical MIME type for text content.
const MIMEText = "text/plain;charset=utf-8"

// SensitiveHint is the MIME type password managers offer alongside a secret
// to ask clipboard managers not to record it.
const SensitiveHint = "x-kde-passwordManagerHint"

var (
	ErrInvalidText = errors.New("content: text is not valid UTF-8")
	ErrEmptyData   = errors.New("content: empty payload")
)

// Content is one clipboard payload in its canonical representation.
type Content struct {
	Kind Kind   `json:"kind"`
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

// NewText returns a text Content.
func NewText(s string) Content {
	return Content{Kind: Text, MIME: MIMEText, Data: []byte(s)}
}

// New builds a Content from raw bytes offered under mime. Text must be valid
// UTF-8. GIFs with more than one frame become AnimatedImage.
func New(mime string, data []byte) (Content, error) {
	if len(data) == 0 {
		return Content{}, ErrEmptyData
	}
	base := baseType(mime)
	switch {
	case isTextType(base):
		if !utf8.Valid(data) {
			return Content{}, ErrInvalidText
		}
		return Content{Kind: Text, MIME: MIMEText, Data: data}, nil
	case base == "image/gif":
		kind := Image
		if g, err := gif.DecodeAll(bytes.NewReader(data)); err == nil && len(g.Image) > 1 {
			kind = AnimatedImage
		}
		return Content{Kind: kind, MIME: base, Data: data}, nil
	case strings.HasPrefix(base, "image/"):
		return Content{Kind: Image, MIME: base, Data: data}, nil
	default:
		return Content{}, fmt.Errorf("content: unsupported MIME type %q", mime)
	}
}

// Text returns the payload as a string for text content, or "".
func (c Content) Text() string {
	if c.Kind != Text {
		return ""
	}
	return string(c.Data)
}

// IsZero reports whether c holds nothing.
func (c Content) IsZero() bool { return c.Kind == 0 && len(c.Data) == 0 }

// Fingerprint is a content-derived BLAKE2b-256 digest.
type Fingerprint [blake2b.Size256]byte

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// Short returns the first 12 hex characters.
func (f Fingerprint) Short() string { return f.String()[:12] }

// IsZero reports whether f is the zero fingerprint.
func (f Fingerprint) IsZero() bool { return f == Fingerprint{} }

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(b []byte) error {
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return fmt.Errorf("fingerprint: %w", err)
	}
	if len(raw) != len(f) {
		return fmt.Errorf("fingerprint: want %d bytes, got %d", len(f), len(raw))
	}
	copy(f[:], raw)
	return nil
}

// Sum computes the fingerprint of c. Text is hashed with CRLF normalized to
// LF so that the same text copied through different tools dedupes.
func Sum(c Content) Fingerprint {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{byte(c.Kind)})
	data := c.Data
	if c.Kind == Text {
		data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	}
	h.Write(data)
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}
