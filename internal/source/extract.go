package source

import "strings"

// ExtractField slices the value following label out of text. The value ends
// at the nearest occurrence of any of the other labels — wherever they appear,
// not in the order given — or at the end of text when none follows. The
// second return is false when the label is missing or the value is blank.
func ExtractField(text, label string, others []string) (string, bool) {
	idx := strings.Index(text, label)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(label):]

	cut := len(rest)
	for _, m := range others {
		if p := strings.Index(rest, m); p >= 0 && p < cut {
			cut = p
		}
	}

	v := strings.TrimSpace(rest[:cut])
	if v == "" {
		return "", false
	}
	return v, true
}
