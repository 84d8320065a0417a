package recognizer

import (
	"context"
	"fmt"
	"image"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/rs/zerolog"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/vision"
)

// DetectTextAPI is the slice of the Rekognition client this backend needs.
type DetectTextAPI interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

type Rekognition struct {
	client        DetectTextAPI
	minConfidence float32
	log           zerolog.Logger
}

// NewRekognition builds a recognizer on Rekognition DetectText. minConfidence is on
// Rekognition's 0-100 scale; lines below it are dropped.
func NewRekognition(client DetectTextAPI, minConfidence float64, log zerolog.Logger) *Rekognition {
	return &Rekognition{
		client:        client,
		minConfidence: float32(minConfidence),
		log:           log.With().Str("component", "rekognition").Logger(),
	}
}

func (r *Rekognition) Recognize(ctx context.Context, crop image.Image) ([]string, error) {
	data, err := vision.EncodeJPEG(crop)
	if err != nil {
		return nil, err
	}

	out, err := r.client.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: data},
	})
	if err != nil {
		return nil, fmt.Errorf("rekognition DetectText: %w", err)
	}

	// Rekognition reports every word twice, once alone and once inside its line;
	// lines alone cover the text without duplication.
	texts := make([]string, 0, len(out.TextDetections))
	for _, td := range out.TextDetections {
		if td.Type != types.TextTypesLine || td.DetectedText == nil {
			continue
		}
		if td.Confidence != nil && *td.Confidence < r.minConfidence {
			r.log.Debug().
				Str("text", *td.DetectedText).
				Float32("confidence", *td.Confidence).
				Msg("dropping low confidence line")
			continue
		}
		texts = append(texts, *td.DetectedText)
	}
	return texts, nil
}
