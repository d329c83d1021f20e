package tts

import (
	"fmt"
	"regexp"
	"strings"
)

var speakTag = regexp.MustCompile(`(?i)^\s*<speak[\s>]`)

// IsSSML reports whether text is wrapped in a <speak> element.
func IsSSML(text string) bool {
	return speakTag.MatchString(text)
}

// ToSSMLWithMarks wraps plain text in <speak> and puts a numbered <mark/> before
// every word, so engines that report marks can drive word callbacks.
func ToSSMLWithMarks(text string) string {
	words := strings.Fields(text)
	parts := make([]string, 0, len(words)+2)
	parts = append(parts, "<speak>")
	for i, word := range words {
		parts = append(parts, fmt.Sprintf(`<mark name="word%d"/>%s`, i, escapeXML(word)))
	}
	parts = append(parts, "</speak>")
	return strings.Join(parts, " ")
}

// StripSSML removes markup, leaving the spoken text.
func StripSSML(text string) string {
	return strings.Join(strings.Fields(markup.ReplaceAllString(text, " ")), " ")
}

var markup = regexp.MustCompile(`<[^<]+?>`)

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
