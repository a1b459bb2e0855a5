// Package release parses audiobook release names to extract container
// format, bitrate, and author/title fields used by the scoring engine.
package release

// Info contains parsed information from a release name.
type Info struct {
	Title      string
	Author     string
	Format     string // m4b, m4a, mp3, aac, ogg, opus, flac, aax
	Bitrate    int    // kbps, 0 when unknown
	Unabridged bool
	Chapters   bool // explicitly chapterized release
}
