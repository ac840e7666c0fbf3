package textutil_test

import (
	"testing"

	"quire/internal/textutil"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"The Lighthouse Keeper", 0, "the_lighthouse_keeper"},
		{"  ", 0, "untitled"},
		{"--Dawn--", 0, "dawn"},
		{"a/b:c", 0, "a_b_c"},
		{"Storm  &  Salt", 0, "storm_salt"},
		{"Café Noir", 0, "café_noir"},
		{"The Lighthouse Keeper", 9, "the_light"},
		{"The Lighthouse", 4, "the"},
	}
	for _, tc := range tests {
		if got := textutil.Slug(tc.in, tc.max); got != tc.want {
			t.Fatalf("Slug(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		` What "Now"? / Part 1 `:  "What Now - Part 1",
		"Line\nbreak\n\ttitle...": "Line break title",
		"":                        "",
	}
	for in, want := range tests {
		if got := textutil.SanitizeFileName(in); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWordCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"One two  three", 3},
		{"# Chapter 1\n\n---\n\nIt rained.", 4},
		{"— ... —", 0},
	}
	for _, tc := range cases {
		if got := textutil.WordCount(tc.in); got != tc.want {
			t.Fatalf("WordCount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := textutil.Truncate("lighthouse", 5); got != "ligh…" {
		t.Fatalf("Truncate = %q", got)
	}
	if got := textutil.Truncate("short", 10); got != "short" {
		t.Fatalf("Truncate = %q", got)
	}
}
