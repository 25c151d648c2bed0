package transform

import (
	"html"
	"regexp"
	"strings"

	"github.com/starford/othala/internal/models"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
	imgRe    = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`)
	objectRe = regexp.MustCompile(`(?i)<object[^>]+data=["']([^"']+)["']`)
	anchorRe = regexp.MustCompile(`(?is)<a[^>]+href=["']([^"']+)["'][^>]*>(.*?)</a>`)
)

// HTML is a basic built-in transformation pipeline: a regex scanner good
// enough for search text and asset discovery. Callers wanting faithful
// Markdown conversion plug in their own Converter.
type HTML struct{}

// NewHTML returns the built-in HTML pipeline.
func NewHTML() *HTML { return &HTML{} }

// ConvertToSearchableText strips markup down to plain text.
func (h *HTML) ConvertToSearchableText(rawMarkup []byte, assets []models.AttachmentRef, links []models.PageLink) (string, ConvertStats, error) {
	s := scriptRe.ReplaceAllString(string(rawMarkup), " ")
	// Preserve block boundaries as newlines before stripping tags.
	for _, tag := range []string{"</p>", "</div>", "</li>", "</h1>", "</h2>", "</h3>", "<br>", "<br/>", "<br />"} {
		s = strings.ReplaceAll(s, tag, tag+"\n")
	}
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = spaceRe.ReplaceAllString(s, " ")
	s = blankRe.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	stats := ConvertStats{
		Characters: len(s),
		Images:     len(assets),
		Links:      len(links),
	}
	return s, stats, nil
}

// ExtractAssets returns the image and file references found in markup,
// deduplicated by source URL.
func (h *HTML) ExtractAssets(rawMarkup []byte) []models.AttachmentRef {
	src := string(rawMarkup)
	seen := make(map[string]struct{})
	var out []models.AttachmentRef

	add := func(url, typ string) {
		if url == "" {
			return
		}
		if _, ok := seen[url]; ok {
			return
		}
		seen[url] = struct{}{}
		out = append(out, models.AttachmentRef{
			Type:      typ,
			SourceURL: url,
			State:     models.DownloadPending,
		})
	}

	for _, m := range imgRe.FindAllStringSubmatch(src, -1) {
		add(m[1], "image")
	}
	for _, m := range objectRe.FindAllStringSubmatch(src, -1) {
		add(m[1], "file")
	}
	return out
}

// ResolveLinks classifies anchors: a link whose href mentions a known page
// id is internal and resolved to that page; a link mentioning a known
// section id is internal but unresolved at page granularity; anything else
// is external.
func (h *HTML) ResolveLinks(rawMarkup []byte, knownPages map[string]string, knownSections map[string]string) []models.PageLink {
	var out []models.PageLink
	for _, m := range anchorRe.FindAllStringSubmatch(string(rawMarkup), -1) {
		href := m[1]
		anchor := strings.TrimSpace(tagRe.ReplaceAllString(m[2], ""))
		link := models.PageLink{Anchor: html.UnescapeString(anchor), TargetURL: href}

		for id := range knownPages {
			if id != "" && strings.Contains(href, id) {
				link.Internal = true
				link.Resolved = true
				link.TargetPageID = id
				break
			}
		}
		if !link.Internal {
			for id := range knownSections {
				if id != "" && strings.Contains(href, id) {
					link.Internal = true
					break
				}
			}
		}
		out = append(out, link)
	}
	return out
}
