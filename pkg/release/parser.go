package release

import (
	"regexp"
	"strconv"
	"strings"
)

// Common audiobook release shapes:
//
//	Author Name - Title (Unabridged) [M4B 64kbps]
//	Title by Author Name (2021) MP3 V0
//	Author.Name.Title.128k.mp3
var (
	bitrateRegex = regexp.MustCompile(`(?i)\b(\d{2,4})\s?(?:k|kbps|kb/s)\b`)
	vbrRegex     = regexp.MustCompile(`(?i)\bV([02])\b`)
	byRegex      = regexp.MustCompile(`(?i)^(.+?)\s+by\s+(.+?)(?:\s*[\(\[]|$)`)
)

var knownFormats = []string{"m4b", "m4a", "mp3", "aac", "opus", "ogg", "flac", "aax", "wma"}

var formatRegex = regexp.MustCompile(`(?i)\b(m4b|m4a|mp3|aac|opus|ogg|flac|aax|wma)\b`)

// Parse extracts information from a release name.
func Parse(name string) *Info {
	info := &Info{}

	normalized := strings.ReplaceAll(name, "_", " ")

	info.Format = parseFormat(normalized)
	info.Bitrate = parseBitrate(normalized)
	info.Unabridged = containsAny(normalized, "unabridged")
	info.Chapters = containsAny(normalized, "chapterized", "chaptered", "chapters")

	info.Title, info.Author = parseTitleAuthor(normalized)

	return info
}

func parseFormat(name string) string {
	if m := formatRegex.FindString(name); m != "" {
		return strings.ToLower(m)
	}
	return ""
}

// vbrBitrates maps LAME VBR presets to their approximate average kbps.
var vbrBitrates = map[string]int{"0": 245, "2": 190}

func parseBitrate(name string) int {
	if m := bitrateRegex.FindStringSubmatch(name); len(m) == 2 {
		kbps, err := strconv.Atoi(m[1])
		if err == nil && kbps >= 8 && kbps <= 2000 {
			return kbps
		}
	}
	if m := vbrRegex.FindStringSubmatch(name); len(m) == 2 {
		return vbrBitrates[m[1]]
	}
	return 0
}

// parseTitleAuthor splits "Author - Title ..." or "Title by Author ..."
// shapes. Either field may come back empty when the name has no recognizable
// separator; the scoring engine penalizes the missing metadata.
func parseTitleAuthor(name string) (title, author string) {
	// Strip bracketed technical suffixes and bare quality tokens before
	// splitting.
	cleaned := stripTechTokens(stripBrackets(name))

	if m := byRegex.FindStringSubmatch(cleaned); len(m) == 3 {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}

	if idx := strings.Index(cleaned, " - "); idx > 0 {
		author = strings.TrimSpace(cleaned[:idx])
		title = strings.TrimSpace(cleaned[idx+3:])
		return title, author
	}

	return strings.TrimSpace(cleaned), ""
}

func stripBrackets(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '[', '(':
			depth++
		case ']', ')':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	fields := strings.Fields(b.String())
	return strings.Join(fields, " ")
}

// stripTechTokens drops format names, bitrate markers, and edition flags
// that survive outside brackets.
func stripTechTokens(s string) string {
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		lower := strings.ToLower(f)
		if isFormatToken(lower) || bitrateRegex.MatchString(f) || vbrRegex.MatchString(f) ||
			lower == "unabridged" || lower == "abridged" || lower == "audiobook" ||
			lower == "chapterized" || lower == "chaptered" {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func isFormatToken(s string) bool {
	for _, f := range knownFormats {
		if s == f {
			return true
		}
	}
	return false
}

func containsAny(name string, terms ...string) bool {
	lower := strings.ToLower(name)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
