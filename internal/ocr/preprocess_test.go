package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), uint8((x + y) % 256), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestShrinkToFitPassthroughUnderLimit(t *testing.T) {
	data := encodePNG(t, 40, 30)
	out := ShrinkToFit(data, int64(len(data))+1, 10)
	if !bytes.Equal(out, data) {
		t.Error("page under the byte limit was rewritten")
	}
}

func TestShrinkToFitPassthroughWhenUnlimited(t *testing.T) {
	data := encodePNG(t, 40, 30)
	if out := ShrinkToFit(data, 0, 10); !bytes.Equal(out, data) {
		t.Error("page rewritten with no byte limit configured")
	}
}

func TestShrinkToFitPassthroughUndecodable(t *testing.T) {
	data := []byte("definitely not an image, but rather long all the same")
	if out := ShrinkToFit(data, 8, 10); !bytes.Equal(out, data) {
		t.Error("undecodable payload was rewritten")
	}
}

func TestShrinkToFitDownscalesOversizedPage(t *testing.T) {
	data := encodePNG(t, 600, 400)
	out := ShrinkToFit(data, 10, 100)

	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode shrunk page: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() > 100 {
		t.Errorf("shrunk dimensions = %dx%d, want width 100 and height <= 100", bounds.Dx(), bounds.Dy())
	}
}

func TestShrinkToFitKeepsDimensionsWithinEdgeLimit(t *testing.T) {
	data := encodePNG(t, 60, 80)
	// Over the byte cap but within the edge cap: re-encode only.
	out := ShrinkToFit(data, 10, 1000)

	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode re-encoded page: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 60 || bounds.Dy() != 80 {
		t.Errorf("dimensions = %dx%d, want 60x80", bounds.Dx(), bounds.Dy())
	}
}

func TestShrinkToFitPortraitUsesLongEdge(t *testing.T) {
	data := encodePNG(t, 200, 500)
	out := ShrinkToFit(data, 10, 100)

	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode shrunk page: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dy() != 100 || bounds.Dx() > 100 {
		t.Errorf("shrunk dimensions = %dx%d, want height 100 and width <= 100", bounds.Dx(), bounds.Dy())
	}
}
