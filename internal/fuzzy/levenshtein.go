package fuzzy

// Distance returns the Levenshtein distance between a and b over code points.
func Distance(a, b string) int {
	return distanceRunes([]rune(a), []rune(b))
}

// distanceRunes keeps a single row sized to the shorter input.
func distanceRunes(a, b []rune) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	if len(a) == 0 {
		return len(b)
	}

	row := make([]int, len(a)+1)
	for i := range row {
		row[i] = i
	}

	for j := 1; j <= len(b); j++ {
		diag := row[0]
		row[0] = j
		for i := 1; i <= len(a); i++ {
			up := row[i]
			if a[i-1] == b[j-1] {
				row[i] = diag
			} else {
				row[i] = 1 + min(diag, up, row[i-1])
			}
			diag = up
		}
	}
	return row[len(a)]
}
