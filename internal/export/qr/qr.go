// Package qr renders certificate payloads as square QR bitmaps.
package qr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"

	dErrors "certexport/pkg/domain-errors"
)

// Level is the error correction used for certificates. It matches the
// platform QR generator default and leaves room for ~2.3 KiB payloads.
const Level = qrcode.Medium

// Size is the requested raster size in pixels.
type Size struct {
	Width  int
	Height int
}

// PrintSize is used for documents meant to be printed.
var PrintSize = Size{Width: 1000, Height: 1000}

var palette = color.Palette{color.White, color.Black}

// Encode renders payload as a QR image of exactly size pixels. Modules are
// scaled with nearest-neighbour sampling so edges stay hard for scanners.
func Encode(payload string, size Size) (image.Image, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, dErrors.New(dErrors.CodeEncoding, "qr size must be positive")
	}
	if payload == "" {
		return nil, dErrors.New(dErrors.CodeEncoding, "qr payload is empty")
	}

	code, err := qrcode.New(payload, Level)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncoding, "payload cannot be encoded")
	}
	// Bitmap includes the 4-module quiet zone.
	bitmap := code.Bitmap()

	n := len(bitmap)
	modules := image.NewPaletted(image.Rect(0, 0, n, n), palette)
	for y, row := range bitmap {
		for x, dark := range row {
			if dark {
				modules.SetColorIndex(x, y, 1)
			}
		}
	}

	dst := image.NewPaletted(image.Rect(0, 0, size.Width, size.Height), palette)
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), modules, modules.Bounds(), draw.Src, nil)
	return dst, nil
}

// EncodePNG is Encode followed by PNG encoding.
func EncodePNG(payload string, size Size) ([]byte, error) {
	img, err := Encode(payload, size)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncoding, "png encoding failed")
	}
	return buf.Bytes(), nil
}
