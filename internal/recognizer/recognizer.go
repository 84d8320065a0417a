// Package recognizer holds the text recognition backends that can read a cropped plate.
// The default backend is the Python sidecar in package worker; the ones here read plates
// through AWS Rekognition or a local Tesseract install.
package recognizer

import (
	"fmt"
	"strings"
)

type Backend string

const (
	BackendWorker      Backend = "worker"
	BackendRekognition Backend = "rekognition"
	BackendTesseract   Backend = "tesseract"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendWorker, BackendRekognition, BackendTesseract:
		return b, nil
	case "":
		return BackendWorker, nil
	default:
		return "", fmt.Errorf("unknown recognizer backend %q", s)
	}
}

// PlateAlphabet is the character whitelist handed to engines that support one.
const PlateAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
