package utils

import "strings"

// CleanPlateText uppercases raw OCR text and drops everything outside [A-Z0-9].
func CleanPlateText(raw string) string {
	if raw == "" {
		return ""
	}
	upper := strings.ToUpper(raw)

	var b strings.Builder
	b.Grow(len(upper))
	for i := 0; i < len(upper); i++ {
		c := upper[i]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// NormalizePlate brings a registry entry into the same alphabet as cleaned OCR text,
// so "be 1653-aag" and "BE1653AAG" are the same plate.
func NormalizePlate(raw string) string {
	return CleanPlateText(strings.TrimSpace(raw))
}

// JoinTextBlocks concatenates recognizer text blocks with all whitespace removed.
func JoinTextBlocks(blocks []string) string {
	var b strings.Builder
	for _, block := range blocks {
		for _, field := range strings.Fields(block) {
			b.WriteString(field)
		}
	}
	return b.String()
}
