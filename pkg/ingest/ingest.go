// Package ingest decodes base64-encoded still images into the grayscale
// pixel buffers the scene analyzer consumes.
//
// Decoding runs in two stages: base64 text to compressed bytes, then
// compressed bytes to a single-channel, row-major, one-byte-per-pixel
// buffer. Each stage fails with its own error kind so callers can tell a
// corrupt transport from an unreadable image. Nothing here keeps state.
package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"

	// Formats beyond the std library's JPEG/PNG/GIF.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Kind identifies which decoding stage failed.
type Kind int

const (
	// KindEncoding means the base64 text was malformed.
	KindEncoding Kind = iota + 1
	// KindImageFormat means the image container could not be parsed.
	KindImageFormat
)

func (k Kind) String() string {
	switch k {
	case KindEncoding:
		return "encoding"
	case KindImageFormat:
		return "image format"
	default:
		return "unknown"
	}
}

// Sentinel errors matched by errors.Is against a *DecodeError.
var (
	ErrEncoding    = errors.New("ingest: malformed base64")
	ErrImageFormat = errors.New("ingest: unparseable image")
)

// DecodeError reports a frame that could not be decoded.
type DecodeError struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("ingest: %s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrEncoding) and errors.Is(err, ErrImageFormat)
// match on the kind.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrEncoding:
		return e.Kind == KindEncoding
	case ErrImageFormat:
		return e.Kind == KindImageFormat
	}
	return false
}

// MaxPixels bounds the declared width*height of an image accepted for
// decoding. Headers are checked before any pixel buffer is allocated.
const MaxPixels = 8192 * 8192

// ErrTooLarge is wrapped by a DecodeError for images whose header declares
// more than MaxPixels pixels.
var ErrTooLarge = errors.New("image dimensions exceed limit")

// Frame is a decoded grayscale frame.
type Frame struct {
	Pix    []byte // row-major, len == Width*Height
	Width  int
	Height int
	Format string // container name reported by the decoder, e.g. "jpeg"
}

// Decode turns a base64-encoded image into a grayscale frame.
// A "data:image/...;base64," prefix is accepted and stripped.
func Decode(encoded string) (*Frame, error) {
	data, err := decodeBase64(encoded)
	if err != nil {
		return nil, &DecodeError{Kind: KindEncoding, Err: err}
	}
	return DecodeBytes(data)
}

// DecodeBytes turns compressed image bytes into a grayscale frame.
func DecodeBytes(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Kind: KindImageFormat, Err: errors.New("empty image")}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Kind: KindImageFormat, Err: err}
	}
	if !withinLimit(cfg.Width, cfg.Height) {
		return nil, &DecodeError{
			Kind: KindImageFormat,
			Err:  fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height),
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Kind: KindImageFormat, Err: err}
	}

	f := Gray(img)
	f.Format = format
	return f, nil
}

func withinLimit(w, h int) bool {
	if w <= 0 || h <= 0 {
		return false
	}
	return w <= MaxPixels/h
}

// Gray converts any image to a grayscale frame using luma weights.
func Gray(img image.Image) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	f := &Frame{Pix: make([]byte, w*h), Width: w, Height: h}

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			off := g.PixOffset(b.Min.X, b.Min.Y+y)
			copy(f.Pix[y*w:(y+1)*w], g.Pix[off:off+w])
		}
		return f
	}

	// imaging.Grayscale keeps R == G == B, so the red channel is the luma.
	gray := imaging.Grayscale(img)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			f.Pix[y*w+x] = row[x*4]
		}
	}
	return f
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.New("data URI without payload")
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, errors.New("empty payload")
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	// Some camera firmwares send unpadded or URL-safe base64.
	for _, enc := range []*base64.Encoding{base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, altErr := enc.DecodeString(s); altErr == nil {
			return data, nil
		}
	}
	return nil, err
}
