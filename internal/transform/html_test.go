package transform

import (
	"strings"
	"testing"
)

func TestConvertToSearchableText(t *testing.T) {
	h := NewHTML()
	raw := []byte(`<html><head><style>body { color: red }</style>
<script>alert("x")</script></head>
<body><h1>Meeting Notes</h1><p>Discussed the &amp; budget.</p>
<div>Action items</div></body></html>`)

	text, stats, err := h.ConvertToSearchableText(raw, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Meeting Notes", "Discussed the & budget.", "Action items"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
	for _, banned := range []string{"<", "color: red", "alert"} {
		if strings.Contains(text, banned) {
			t.Errorf("text should not contain %q:\n%s", banned, text)
		}
	}
	if stats.Characters != len(text) {
		t.Errorf("stats.Characters = %d, want %d", stats.Characters, len(text))
	}
}

func TestConvertToSearchableText_BlockBoundaries(t *testing.T) {
	h := NewHTML()
	text, _, err := h.ConvertToSearchableText([]byte("<p>first</p><p>second</p>"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(text, "firstsecond") {
		t.Errorf("block boundary lost: %q", text)
	}
}

func TestExtractAssets(t *testing.T) {
	h := NewHTML()
	raw := []byte(`<img src="http://x/a.png"><IMG SRC='http://x/b.jpg'>
<img src="http://x/a.png"><object data="http://x/doc.pdf"></object>`)

	assets := h.ExtractAssets(raw)
	if len(assets) != 3 {
		t.Fatalf("assets = %d, want 3 (deduplicated)", len(assets))
	}
	byURL := make(map[string]string)
	for _, a := range assets {
		byURL[a.SourceURL] = a.Type
		if a.State != "pending" {
			t.Errorf("asset %s state = %q, want pending", a.SourceURL, a.State)
		}
	}
	if byURL["http://x/a.png"] != "image" || byURL["http://x/doc.pdf"] != "file" {
		t.Errorf("asset types = %v", byURL)
	}
}

func TestExtractAssets_None(t *testing.T) {
	h := NewHTML()
	if assets := h.ExtractAssets([]byte("<p>plain paragraph</p>")); len(assets) != 0 {
		t.Errorf("assets = %+v, want none", assets)
	}
}

func TestResolveLinks(t *testing.T) {
	h := NewHTML()
	raw := []byte(`<a href="https://remote/pages/page-42">See <b>other page</b></a>
<a href="https://remote/sections/sec-7">section link</a>
<a href="https://example.com/else">elsewhere</a>`)

	links := h.ResolveLinks(raw,
		map[string]string{"page-42": "Other Page"},
		map[string]string{"sec-7": "Section Seven"})
	if len(links) != 3 {
		t.Fatalf("links = %d, want 3", len(links))
	}

	internal := links[0]
	if !internal.Internal || !internal.Resolved || internal.TargetPageID != "page-42" {
		t.Errorf("page link = %+v", internal)
	}
	if internal.Anchor != "See other page" {
		t.Errorf("anchor = %q, nested markup should be stripped", internal.Anchor)
	}

	section := links[1]
	if !section.Internal || section.Resolved {
		t.Errorf("section link = %+v, want internal but unresolved", section)
	}

	external := links[2]
	if external.Internal || external.Resolved {
		t.Errorf("external link = %+v", external)
	}
}
