//go:build tesseract

package recognizer

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/vision"
)

// Tesseract reads plates with a local libtesseract. A gosseract client is not safe for
// concurrent use, so calls are serialized.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

func NewTesseract(language string) (*Tesseract, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("tesseract language %q: %w", language, err)
	}
	if err := client.SetWhitelist(PlateAlphabet); err != nil {
		client.Close()
		return nil, fmt.Errorf("tesseract whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("tesseract page segmentation: %w", err)
	}
	return &Tesseract{client: client}, nil
}

func (t *Tesseract) Recognize(ctx context.Context, crop image.Image) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := vision.EncodeJPEG(crop)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("tesseract image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
