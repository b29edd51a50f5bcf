package transcode_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborlab/mediastore/pkg/mediastore/transcode"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestOptimizePassesThroughUnsupportedMime(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
	}{
		{"video", "video/mp4"},
		{"gif", "image/gif"},
		{"octet stream", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte("opaque payload")
			res := transcode.Optimize(data, tt.mimeType, transcode.OptimizeOptions{})

			assert.False(t, res.Applied)
			assert.Equal(t, data, res.Data)
			assert.NotEmpty(t, res.Warning)
		})
	}
}

func TestOptimizePassesThroughUndecodableInput(t *testing.T) {
	data := []byte("definitely not a png")
	res := transcode.Optimize(data, "image/png", transcode.OptimizeOptions{})

	assert.False(t, res.Applied)
	assert.Equal(t, data, res.Data)
	assert.NotEmpty(t, res.Warning)
}

func TestOptimizePreservesFormat(t *testing.T) {
	res := transcode.Optimize(encodePNG(t, 50, 50), "image/png", transcode.OptimizeOptions{})
	require.True(t, res.Applied)

	_, format, err := image.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format, "optimized output must stay in the input format")
}

func TestOptimizeDownscalesWithoutUpscaling(t *testing.T) {
	tests := []struct {
		name       string
		maxWidth   int
		maxHeight  int
		wantWidth  int
		wantHeight int
	}{
		{"fits width bound", 100, 0, 100, 50},
		{"fits height bound", 0, 25, 50, 25},
		{"both bounds keep aspect", 100, 25, 50, 25},
		{"larger bound never upscales", 1000, 1000, 200, 100},
	}

	src := encodeJPEG(t, 200, 100)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := transcode.Optimize(src, "image/jpeg", transcode.OptimizeOptions{
				MaxWidth:  tt.maxWidth,
				MaxHeight: tt.maxHeight,
			})
			require.True(t, res.Applied)

			img, err := jpeg.Decode(bytes.NewReader(res.Data))
			require.NoError(t, err)
			assert.Equal(t, tt.wantWidth, img.Bounds().Dx())
			assert.Equal(t, tt.wantHeight, img.Bounds().Dy())
		})
	}
}

func TestThumbnailExactDimensionsAndDeterminism(t *testing.T) {
	src := encodePNG(t, 317, 211)

	first, err := transcode.Thumbnail(src, 64, 48)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx(), "thumbnail must be exactly the requested width")
	assert.Equal(t, 48, img.Bounds().Dy())

	second, err := transcode.Thumbnail(src, 64, 48)
	require.NoError(t, err)
	assert.Equal(t, first, second, "identical input must yield byte-identical output")
}

func TestThumbnailRejectsBadInput(t *testing.T) {
	_, err := transcode.Thumbnail([]byte("not an image"), 64, 64)
	assert.ErrorIs(t, err, transcode.ErrNotAnImage)

	_, err = transcode.Thumbnail(encodePNG(t, 10, 10), 0, 64)
	assert.Error(t, err)
}
