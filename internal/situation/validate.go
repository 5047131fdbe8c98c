package situation

import (
	"strings"
	"unicode/utf8"
)

var refusalMarkers = []string{"I'm sorry", "I cannot"}

// Validate is the quality gate for generated text. Callers apply it before
// showing a situation. The client never filters on its own.
func Validate(text string) bool {
	text = strings.TrimSpace(text)

	n := utf8.RuneCountInString(text)
	if n <= 10 || n >= 500 {
		return false
	}
	for _, marker := range refusalMarkers {
		if strings.Contains(text, marker) {
			return false
		}
	}
	return len(strings.Fields(text)) >= 5
}
