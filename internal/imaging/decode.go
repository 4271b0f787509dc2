// Package imaging turns uploaded image bytes into the fixed-shape float
// tensor the classifier expects.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the declared width×height of an image accepted for
// decoding.
const DefaultMaxPixels int64 = 64 << 20

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrEmptyImage        = errors.New("empty image")
	ErrImageTooLarge     = errors.New("image too large")
)

type codec struct {
	decode       func(io.Reader) (image.Image, error)
	decodeConfig func(io.Reader) (image.Config, error)
}

var codecs = []struct {
	mime string
	codec
}{
	{"image/jpeg", codec{jpeg.Decode, jpeg.DecodeConfig}},
	{"image/png", codec{png.Decode, png.DecodeConfig}},
	{"image/bmp", codec{bmp.Decode, bmp.DecodeConfig}},
	{"image/webp", codec{webp.Decode, webp.DecodeConfig}},
	{"image/gif", codec{gif.Decode, gif.DecodeConfig}},
}

// Decode is DecodeLimit with DefaultMaxPixels.
func Decode(data []byte) (image.Image, string, error) {
	return DecodeLimit(data, DefaultMaxPixels)
}

// DecodeLimit sniffs the content type of data and decodes it. The returned
// string is the detected MIME type, also on failure. The header is read first
// and images declaring more than maxPixels pixels are rejected with
// ErrImageTooLarge before any pixel buffer is allocated. maxPixels <= 0 means
// DefaultMaxPixels.
func DecodeLimit(data []byte, maxPixels int64) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	mtype := mimetype.Detect(data)
	var c *codec
	for i := range codecs {
		if mtype.Is(codecs[i].mime) {
			c = &codecs[i].codec
			break
		}
	}
	if c == nil {
		return nil, mtype.String(), fmt.Errorf("%w: %s", ErrUnsupportedFormat, mtype.String())
	}

	cfg, err := c.decodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, mtype.String(), fmt.Errorf("decode %s header: %w", mtype.String(), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, mtype.String(), ErrEmptyImage
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, mtype.String(), fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, err := c.decode(bytes.NewReader(data))
	if err != nil {
		return nil, mtype.String(), fmt.Errorf("decode %s: %w", mtype.String(), err)
	}
	if img.Bounds().Empty() {
		return nil, mtype.String(), ErrEmptyImage
	}
	return img, mtype.String(), nil
}
