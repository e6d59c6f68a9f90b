package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize is the equivalence used for fingerprints: surrounding whitespace is
// trimmed and the text is lowercased. Bytes that are not valid UTF-8 are kept as is.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	if utf8.ValidString(text) {
		return strings.ToLower(text)
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		r, w := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && w == 1 {
			b.WriteByte(text[i])
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
		i += w
	}
	return b.String()
}

// TextKey fingerprints a single comment.
func TextKey(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(Normalize(text))))
}

// BatchKey fingerprints a list of comments independently of their order.
func BatchKey(texts []string) string {
	norm := make([]string, len(texts))
	for i, t := range texts {
		norm[i] = Normalize(t)
	}
	slices.Sort(norm)

	// Each element is length-prefixed and written as raw bytes, so invalid UTF-8
	// stays distinct.
	h := sha256.New()
	var n [binary.MaxVarintLen64]byte
	for _, s := range norm {
		h.Write(n[:binary.PutUvarint(n[:], uint64(len(s)))])
		h.Write([]byte(s))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
