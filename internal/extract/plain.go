package extract

import (
	"strings"
	"unicode/utf8"
)

// decodeSource returns content as string. Invalid UTF-8 sequences are replaced with the
// replacement character.
func decodeSource(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\uFFFD")
	}
	return string(content)
}
