package recognizer

import (
	"math"

	"blob-recognition/internal/models"
)

// Normalize maps raw backend labels to the stored shape: confidence becomes
// an integer clamped to [0,100], order is preserved, parents are copied.
// Pure transform, no failure mode beyond its inputs.
func Normalize(raw []RawLabel) []models.Label {
	labels := make([]models.Label, 0, len(raw))
	for _, r := range raw {
		label := models.Label{
			Name:       r.Name,
			Confidence: clampConfidence(r.Confidence),
		}
		if len(r.Parents) > 0 {
			label.Parents = append([]string(nil), r.Parents...)
		}
		labels = append(labels, label)
	}
	return labels
}

func clampConfidence(c float64) int {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return int(math.Round(c))
}
