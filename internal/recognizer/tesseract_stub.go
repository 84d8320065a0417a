//go:build !tesseract

package recognizer

import (
	"context"
	"errors"
	"image"
)

var ErrTesseractUnavailable = errors.New("binary built without tesseract support (rebuild with -tags tesseract)")

type Tesseract struct{}

func NewTesseract(string) (*Tesseract, error) {
	return nil, ErrTesseractUnavailable
}

func (*Tesseract) Recognize(context.Context, image.Image) ([]string, error) {
	return nil, ErrTesseractUnavailable
}

func (*Tesseract) Close() error { return nil }
