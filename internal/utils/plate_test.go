package utils

import "testing"

func TestCleanPlateText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{" BE1653AAG ", "BE1653AAG"},
		{"be 1653-aag", "BE1653AAG"},
		{"B 1030 NZQ.", "B1030NZQ"},
		{"---", ""},
		{"Ü12ß", "12SS"},
		{"\tab\nc 9", "ABC9"},
	}

	for _, tc := range cases {
		if got := CleanPlateText(tc.in); got != tc.want {
			t.Errorf("CleanPlateText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanPlateTextIdempotent(t *testing.T) {
	inputs := []string{"", "abc", " BE1653AAG ", "x-y-z 123", "日本 99 ab", "!!", "ıi"}
	for _, in := range inputs {
		once := CleanPlateText(in)
		if twice := CleanPlateText(once); twice != once {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizePlate(t *testing.T) {
	if got := NormalizePlate("  b1030nzq\n"); got != "B1030NZQ" {
		t.Errorf("NormalizePlate = %q", got)
	}
	if got := NormalizePlate("   "); got != "" {
		t.Errorf("NormalizePlate of blank = %q", got)
	}
}

func TestJoinTextBlocks(t *testing.T) {
	got := JoinTextBlocks([]string{"BE 1653", " AAG ", ""})
	if got != "BE1653AAG" {
		t.Errorf("JoinTextBlocks = %q", got)
	}
	if got := JoinTextBlocks(nil); got != "" {
		t.Errorf("JoinTextBlocks(nil) = %q", got)
	}
}
