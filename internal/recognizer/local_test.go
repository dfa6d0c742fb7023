package recognizer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"blob-recognition/internal/uploads"
)

func encodePNG(t *testing.T, w, h int, fill color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func localBackend(t *testing.T, maxBytes int64) (*Local, *uploads.LocalStore) {
	t.Helper()
	blobs := uploads.NewLocalStore(t.TempDir(), "http://localhost:8080")
	return NewLocal(blobs, maxBytes, 10, 50), blobs
}

func TestLocalDetectLabels(t *testing.T) {
	ctx := context.Background()
	rec, blobs := localBackend(t, 0)
	if err := blobs.Put(ctx, "b1", encodePNG(t, 8, 4, color.RGBA{R: 255, A: 255})); err != nil {
		t.Fatalf("put: %v", err)
	}

	raw, err := rec.DetectLabels(ctx, "b1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}

	byName := map[string]RawLabel{}
	for _, l := range raw {
		byName[l.Name] = l
	}
	if _, ok := byName["PNG"]; !ok {
		t.Fatalf("format label missing: %+v", raw)
	}
	if _, ok := byName["Landscape"]; !ok {
		t.Fatalf("orientation label missing: %+v", raw)
	}
	red, ok := byName["Red"]
	if !ok {
		t.Fatalf("colour label missing: %+v", raw)
	}
	if red.Confidence < 50 {
		t.Fatalf("pure red scored %f", red.Confidence)
	}
	if len(red.Parents) != 1 || red.Parents[0] != "Colour" {
		t.Fatalf("colour parents: %+v", red.Parents)
	}
}

func TestLocalGarbageIsInvalid(t *testing.T) {
	ctx := context.Background()
	rec, blobs := localBackend(t, 0)
	if err := blobs.Put(ctx, "b1", []byte("definitely not an image")); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, err := rec.DetectLabels(ctx, "b1")
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Kind != KindInvalid {
		t.Fatalf("expected invalid classification, got %v", err)
	}
	if Classify(err) != KindInvalid {
		t.Fatalf("classify disagrees with error kind")
	}
}

func TestLocalOversizeIsTooLarge(t *testing.T) {
	ctx := context.Background()
	rec, blobs := localBackend(t, 64)
	if err := blobs.Put(ctx, "b1", encodePNG(t, 32, 32, color.RGBA{A: 255})); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, err := rec.DetectLabels(ctx, "b1")
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Kind != KindTooLarge {
		t.Fatalf("expected too-large classification, got %v", err)
	}
}

func TestClassifyUnknownErrorIsOther(t *testing.T) {
	if Classify(errors.New("backend exploded")) != KindOther {
		t.Fatalf("plain errors must classify as other")
	}
}
