package ocr

import (
	"bytes"

	"github.com/disintegration/imaging"
)

// ShrinkToFit downscales and re-encodes a page that exceeds maxBytes so
// the recognition backend will accept it. Pages already under the limit,
// or in formats imaging cannot decode, pass through untouched.
func ShrinkToFit(data []byte, maxBytes int64, maxEdge int) []byte {
	if maxBytes <= 0 || int64(len(data)) <= maxBytes {
		return data
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxEdge > 0 && (w > maxEdge || h > maxEdge) {
		if w >= h {
			img = imaging.Resize(img, maxEdge, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxEdge, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return data
	}
	return buf.Bytes()
}
