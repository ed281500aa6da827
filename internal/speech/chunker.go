package speech

import "strings"

// splitDelims are tried in order when a text exceeds the per-request
// character limit: sentence ends first, then line breaks, then any space.
var splitDelims = []rune{'.', '!', '?', '\n', ' '}

// ChunkText splits text into pieces of at most maxChars characters,
// preferring to break at sentence boundaries. Delimiters stay with the
// preceding chunk. A hard split at maxChars is the last resort for
// delimiter-free text. Windowing counts runes, not bytes, so multi-byte
// text is never cut mid-character.
func ChunkText(text string, maxChars int) []string {
	if maxChars <= 0 || text == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxChars {
			if piece := strings.TrimSpace(string(runes)); piece != "" {
				chunks = append(chunks, piece)
			}
			break
		}

		window := runes[:maxChars]
		split := -1
		for _, delim := range splitDelims {
			if idx := lastIndexRune(window, delim); idx != -1 {
				split = idx
				break
			}
		}
		if split == -1 {
			split = maxChars - 1
		}

		piece := strings.TrimSpace(string(runes[:split+1]))
		if piece != "" {
			chunks = append(chunks, piece)
		}
		runes = runes[split+1:]
	}

	return chunks
}

func lastIndexRune(window []rune, delim rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == delim {
			return i
		}
	}
	return -1
}
