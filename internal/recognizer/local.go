package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"

	"blob-recognition/internal/uploads"
)

// Local is a self-contained extraction backend for runs without AWS: it
// decodes the uploaded bytes and derives coarse labels from format,
// orientation and dominant colour. Failure classification matches the
// Rekognition backend so the pipeline's taxonomy behaves identically.
type Local struct {
	blobs         uploads.Store
	maxBytes      int64
	maxLabels     int
	minConfidence int
}

var _ Recognizer = (*Local)(nil)

func NewLocal(blobs uploads.Store, maxBytes int64, maxLabels, minConfidence int) *Local {
	if maxBytes <= 0 {
		maxBytes = 15 * 1024 * 1024
	}
	if maxLabels <= 0 {
		maxLabels = 10
	}
	return &Local{
		blobs:         blobs,
		maxBytes:      maxBytes,
		maxLabels:     maxLabels,
		minConfidence: minConfidence,
	}
}

func (l *Local) DetectLabels(ctx context.Context, key string) ([]RawLabel, error) {
	body, err := l.blobs.Fetch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch blob: %w", err)
	}
	if int64(len(body)) > l.maxBytes {
		return nil, &Error{
			Kind:    KindTooLarge,
			Message: fmt.Sprintf("too large image has been uploaded (%d bytes, limit %d)", len(body), l.maxBytes),
		}
	}

	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindInvalid, Message: "invalid image format has been uploaded", Err: err}
	}

	labels := []RawLabel{
		{Name: strings.ToUpper(format), Confidence: 100, Parents: []string{"Format"}},
		{Name: orientation(img.Bounds()), Confidence: 100, Parents: []string{"Geometry"}},
		dominantColour(img),
	}

	out := labels[:0]
	for _, l2 := range labels {
		if l2.Confidence >= float64(l.minConfidence) {
			out = append(out, l2)
		}
	}
	if len(out) > l.maxLabels {
		out = out[:l.maxLabels]
	}
	return out, nil
}

func orientation(b image.Rectangle) string {
	switch {
	case b.Dx() > b.Dy():
		return "Landscape"
	case b.Dy() > b.Dx():
		return "Portrait"
	default:
		return "Square"
	}
}

// dominantColour downsamples the image to one pixel and names the nearest
// primary colour, with confidence scaled by how close the match is.
func dominantColour(img image.Image) RawLabel {
	px := imaging.Resize(img, 1, 1, imaging.Box).At(0, 0)
	r, g, b, _ := px.RGBA()

	type namedColour struct {
		name    string
		r, g, b uint32
	}
	palette := []namedColour{
		{"Black", 0, 0, 0},
		{"White", 0xffff, 0xffff, 0xffff},
		{"Red", 0xffff, 0, 0},
		{"Green", 0, 0xffff, 0},
		{"Blue", 0, 0, 0xffff},
		{"Yellow", 0xffff, 0xffff, 0},
		{"Cyan", 0, 0xffff, 0xffff},
		{"Magenta", 0xffff, 0, 0xffff},
	}

	best := palette[0]
	bestDist := uint64(1<<63 - 1)
	for _, c := range palette {
		d := sqDiff(r, c.r) + sqDiff(g, c.g) + sqDiff(b, c.b)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}

	// Three channels, each at most 0xffff apart.
	maxDist := 3 * uint64(0xffff) * uint64(0xffff)
	confidence := 100 * (1 - float64(bestDist)/float64(maxDist))
	return RawLabel{Name: best.name, Confidence: confidence, Parents: []string{"Colour"}}
}

func sqDiff(a, b uint32) uint64 {
	d := int64(a) - int64(b)
	return uint64(d * d)
}
