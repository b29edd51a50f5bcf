package mediastore

import "github.com/harborlab/mediastore/pkg/mediastore/transcode"

// imagingTransformer adapts the transcode package to the transformer seam.
type imagingTransformer struct{}

func (imagingTransformer) Optimize(data []byte, mimeType string, quality, maxWidth, maxHeight int) ([]byte, bool, string) {
	res := transcode.Optimize(data, mimeType, transcode.OptimizeOptions{
		Quality:   quality,
		MaxWidth:  maxWidth,
		MaxHeight: maxHeight,
	})
	return res.Data, res.Applied, res.Warning
}

func (imagingTransformer) Thumbnail(data []byte, width, height int) ([]byte, error) {
	return transcode.Thumbnail(data, width, height)
}
