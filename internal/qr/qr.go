// Package qr renders peer-info payloads as PNG QR codes.
package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	// DefaultSize is the edge length in pixels when none is requested
	DefaultSize = 800
	// MaxSize is the largest accepted edge length
	MaxSize = 4096
	// QuietZone is the minimum margin in modules
	QuietZone = 1
)

var (
	// ErrEmptyPayload is returned for an empty payload
	ErrEmptyPayload = errors.New("empty payload")
	// ErrSize is returned for sizes above MaxSize or too small for the symbol
	ErrSize = errors.New("invalid image size")
)

// EncodeError wraps every Render failure
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return "qr encode: " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Render encodes payload at error correction level Medium into a size×size PNG.
// A size of zero or less selects DefaultSize.
func Render(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, &EncodeError{Err: ErrEmptyPayload}
	}
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		return nil, &EncodeError{Err: fmt.Errorf("%w: %d exceeds %d", ErrSize, size, MaxSize)}
	}

	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	code.DisableBorder = true

	img, err := draw(code.Bitmap(), size)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &EncodeError{Err: err}
	}
	return buf.Bytes(), nil
}

// draw scales the symbol to whole pixels per module and centres it on a white canvas
func draw(bitmap [][]bool, size int) (image.Image, error) {
	modules := len(bitmap)
	scale := size / (modules + 2*QuietZone)
	if scale < 1 {
		return nil, fmt.Errorf("%w: %dpx cannot hold %d modules", ErrSize, size, modules+2*QuietZone)
	}
	offset := (size - modules*scale) / 2

	palette := color.Palette{color.White, color.Black}
	img := image.NewPaletted(image.Rect(0, 0, size, size), palette)

	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetColorIndex(offset+x*scale+dx, offset+y*scale+dy, 1)
				}
			}
		}
	}
	return img, nil
}
