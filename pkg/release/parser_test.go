package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want Info
	}{
		{
			name: "Andy Weir - Project Hail Mary (Unabridged) [M4B 64kbps]",
			want: Info{Title: "Project Hail Mary", Author: "Andy Weir", Format: "m4b", Bitrate: 64, Unabridged: true},
		},
		{
			name: "Dune by Frank Herbert (1965) MP3 128k",
			want: Info{Title: "Dune", Author: "Frank Herbert", Format: "mp3", Bitrate: 128},
		},
		{
			name: "Brandon Sanderson - The Way of Kings [MP3 V0]",
			want: Info{Title: "The Way of Kings", Author: "Brandon Sanderson", Format: "mp3", Bitrate: 245},
		},
		{
			name: "The Hobbit FLAC Chapterized",
			want: Info{Title: "The Hobbit", Format: "flac", Chapters: true},
		},
		{
			name: "Some Random Thing",
			want: Info{Title: "Some Random Thing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.name)
			assert.Equal(t, tt.want.Title, got.Title, "title")
			assert.Equal(t, tt.want.Author, got.Author, "author")
			assert.Equal(t, tt.want.Format, got.Format, "format")
			assert.Equal(t, tt.want.Bitrate, got.Bitrate, "bitrate")
			assert.Equal(t, tt.want.Unabridged, got.Unabridged, "unabridged")
			assert.Equal(t, tt.want.Chapters, got.Chapters, "chapters")
		})
	}
}

func TestParseBitrate(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"Title 64kbps", 64},
		{"Title 128k", 128},
		{"Title 320 kbps", 320},
		{"Title V0", 245},
		{"Title V2", 190},
		{"Title 9999k", 0}, // out of plausible range
		{"Title", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseBitrate(tt.in), "input %q", tt.in)
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"The Name of the Wind", "name of the wind"},
		{"Léon & Co.", "leon and co"},
		{"Dune: The Butlerian Jihad", "dune butlerian jihad"},
		{"A Storm of Swords", "storm of swords"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTitle(tt.in), "input %q", tt.in)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		wanted, parsed string
		min            MatchConfidence
	}{
		{"Andy Weir", "Andy Weir", ConfidenceHigh},
		{"Andy Weir", "andy weir", ConfidenceHigh},
		{"The Way of Kings", "Way of Kings", ConfidenceHigh},
		{"Andy Weir", "Completely Different", ConfidenceNone},
		{"", "anything", ConfidenceNone},
	}

	for _, tt := range tests {
		got := Match(tt.wanted, tt.parsed)
		assert.Equal(t, tt.min, got.Confidence, "%q vs %q (score %.2f)", tt.wanted, tt.parsed, got.Score)
	}
}
