// Package transcode implements stateless byte-buffer image transforms:
// optimization (re-encode at bounded quality, optional downscale) and
// fixed-aspect thumbnail rendering.
//
// Transforms are pure functions. Thumbnail output is deterministic: the same
// input bytes and dimensions always produce byte-identical output, which the
// thumbnail cache relies on. Unsupported input never fails an optimization
// call; the original bytes pass through with a warning.
package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
)

// ErrNotAnImage indicates input that cannot be decoded as an image.
var ErrNotAnImage = errors.New("input is not a decodable image")

// DefaultQuality is the JPEG quality used when the caller does not supply one.
const DefaultQuality = 80

// thumbQuality is fixed so thumbnail output stays deterministic across calls.
const thumbQuality = 85

// OptimizeOptions bound an optimization pass.
type OptimizeOptions struct {
	Quality   int // 1-100; 0 means DefaultQuality
	MaxWidth  int // optional downscale bound; never upscales
	MaxHeight int
}

// Result is the outcome of an optimization pass. When Applied is false the
// Data field holds the caller's original bytes and Warning says why.
type Result struct {
	Data    []byte
	Applied bool
	Warning string
}

// Optimize re-encodes an image at bounded quality, optionally downscaling it
// to fit within MaxWidth x MaxHeight while preserving aspect ratio. The
// output format matches the input MIME type. Video and any input the decoder
// rejects pass through unmodified with a warning; Optimize never returns an
// error to the caller.
func Optimize(data []byte, mimeType string, opts OptimizeOptions) Result {
	format, ok := encodableFormat(mimeType)
	if !ok {
		return Result{Data: data, Warning: fmt.Sprintf("mime type %s not supported for optimization", mimeType)}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{Data: data, Warning: fmt.Sprintf("decode failed: %v", err)}
	}

	if opts.MaxWidth > 0 || opts.MaxHeight > 0 {
		img = fit(img, opts.MaxWidth, opts.MaxHeight)
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := encode(&buf, img, format, quality); err != nil {
		return Result{Data: data, Warning: fmt.Sprintf("encode failed: %v", err)}
	}

	return Result{Data: buf.Bytes(), Applied: true}
}

// Thumbnail renders a deterministic cover-crop thumbnail of exactly
// width x height pixels, encoded as JPEG. It returns ErrNotAnImage when the
// input cannot be decoded.
func Thumbnail(data []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid thumbnail dimensions %dx%d", width, height)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	thumb := imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// fit downscales img to fit within the given bounds, never upscaling. A zero
// bound means unbounded on that axis.
func fit(img image.Image, maxWidth, maxHeight int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || maxWidth > b.Dx() {
		maxWidth = b.Dx()
	}
	if maxHeight <= 0 || maxHeight > b.Dy() {
		maxHeight = b.Dy()
	}
	if maxWidth == b.Dx() && maxHeight == b.Dy() {
		return img
	}
	return imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
}

// encodableFormat maps a MIME type to its output encoder. Only formats with
// a lossless round-trip through the decoder are re-encoded.
func encodableFormat(mimeType string) (string, bool) {
	switch mimeType {
	case "image/jpeg":
		return "jpeg", true
	case "image/png":
		return "png", true
	default:
		return "", false
	}
}

func encode(buf *bytes.Buffer, img image.Image, format string, quality int) error {
	switch format {
	case "jpeg":
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(buf, img)
	default:
		return fmt.Errorf("unsupported format %s", format)
	}
}
