package recognizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"blob-recognition/internal/config"
)

// Rekognition extracts labels with AWS Rekognition, reading the blob
// straight from the bucket by key.
type Rekognition struct {
	client        *rekognition.Client
	bucket        string
	maxLabels     int32
	minConfidence float32
}

var _ Recognizer = (*Rekognition)(nil)

// NewRekognition builds the backend from config.
func NewRekognition(ctx context.Context, cfg config.Config) (*Rekognition, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Rekognition{
		client:        rekognition.NewFromConfig(awsCfg),
		bucket:        cfg.BlobBucket,
		maxLabels:     int32(cfg.MaxLabels),
		minConfidence: float32(cfg.MinConfidence),
	}, nil
}

// DetectLabels calls Rekognition and maps its reported failure reasons to
// the taxonomy kinds.
func (r *Rekognition) DetectLabels(ctx context.Context, key string) ([]RawLabel, error) {
	out, err := r.client.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image: &rektypes.Image{
			S3Object: &rektypes.S3Object{
				Bucket: aws.String(r.bucket),
				Name:   aws.String(key),
			},
		},
		MaxLabels:     aws.Int32(r.maxLabels),
		MinConfidence: aws.Float32(r.minConfidence),
	})
	if err != nil {
		var invalid *rektypes.InvalidImageFormatException
		if errors.As(err, &invalid) {
			return nil, &Error{Kind: KindInvalid, Message: "invalid image format has been uploaded", Err: err}
		}
		var tooLarge *rektypes.ImageTooLargeException
		if errors.As(err, &tooLarge) {
			return nil, &Error{Kind: KindTooLarge, Message: "too large image has been uploaded", Err: err}
		}
		return nil, fmt.Errorf("detect labels: %w", err)
	}

	labels := make([]RawLabel, 0, len(out.Labels))
	for _, l := range out.Labels {
		raw := RawLabel{
			Name:       aws.ToString(l.Name),
			Confidence: float64(aws.ToFloat32(l.Confidence)),
		}
		for _, p := range l.Parents {
			raw.Parents = append(raw.Parents, aws.ToString(p.Name))
		}
		labels = append(labels, raw)
	}
	return labels, nil
}
