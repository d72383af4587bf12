package anilist

import (
	"html"
	"regexp"
	"strings"
)

var (
	lineBreakRe = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRe       = regexp.MustCompile(`<[^>]*>`)
	sourceRe    = regexp.MustCompile(`(?i)\(\s*source:[^)]*\)\s*$`)
)

// cleanDescription turns AniList's HTML description into plain text. Paragraph
// breaks survive as a single newline; a trailing "(Source: ...)" credit is dropped
// because it carries nothing worth summarizing.
func cleanDescription(raw string) string {
	s := lineBreakRe.ReplaceAllString(raw, "\n")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	var paras []string
	for _, line := range strings.Split(s, "\n") {
		if p := strings.Join(strings.Fields(line), " "); p != "" {
			paras = append(paras, p)
		}
	}
	out := strings.Join(paras, "\n")
	return strings.TrimSpace(sourceRe.ReplaceAllString(out, ""))
}
