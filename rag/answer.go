package rag

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// Answer is a model response with its image markers resolved to URLs.
type Answer struct {
	Text   string
	Images []string
}

// imageMarker matches both "Image: <path>" and "(Image: <path>)".
// The path may itself contain parentheses, as in "pic(1).png".
var imageMarker = regexp.MustCompile(`(?i)\(?[ \t]*Image:\s*([^\s]+\.(?:jpeg|jpg|png|gif|bmp|webp))[ \t]*\)?`)

// whitespace also matches Unicode spaces such as U+00A0, which \s does not.
var whitespace = regexp.MustCompile(`[\s\p{Zs}]+`)

// Process extracts the image markers from raw, maps each unique file name
// to a URL under imageBaseURL, and strips the markers from the text.
func Process(raw, imageBaseURL string) Answer {
	names := ExtractImages(raw)
	a := Answer{
		Text:   Clean(raw),
		Images: make([]string, len(names)),
	}
	for i, name := range names {
		a.Images[i] = ImageURL(imageBaseURL, name)
	}
	return a
}

// ExtractImages returns the unique base names of every image marker in text,
// sorted.
func ExtractImages(text string) (names []string) {
	seen := make(map[string]struct{})
	for _, m := range imageMarker.FindAllStringSubmatch(text, -1) {
		name := baseName(m[1])
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Clean removes image markers and normalizes whitespace.
func Clean(text string) string {
	text = imageMarker.ReplaceAllString(text, " ")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ImageURL joins an image file name onto a base URL.
func ImageURL(baseURL, name string) string {
	return baseURL + url.PathEscape(name)
}

// baseName accepts both separators since model output may carry either.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
