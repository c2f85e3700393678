package knowledge

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/paylane/concierge/engine/core"
)

var titleCaser = cases.Title(language.Und)

const (
	sourceTypeInternal = "internal"
	sourceTypeExternal = "external"
)

var urlSuffix = regexp.MustCompile(`[?#].*$`)

// BuildCitations assembles deduplicated citations for a selection. When the
// selection and external results are both empty, the fallback root source is
// cited instead; a specific citation is never fabricated.
func BuildCitations(chunks []Chunk, external []WebResult, fallbackURL string) []core.Citation {
	citations := make([]core.Citation, 0, len(chunks)+len(external))
	seen := make(map[string]struct{})

	fallbackHost := hostOf(fallbackURL)
	for i := range chunks {
		rawURL := chunks[i].SourceURL
		if rawURL == "" {
			rawURL = fallbackURL
		}
		canonical := CanonicalURL(rawURL)
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		sourceType := sourceTypeExternal
		if hostOf(canonical) == fallbackHost {
			sourceType = sourceTypeInternal
		}
		title := chunks[i].Title
		if title == "" {
			title = titleFromURL(canonical)
		}
		citations = append(citations, core.Citation{Title: title, URL: canonical, SourceType: sourceType})
	}

	for _, result := range external {
		canonical := CanonicalURL(result.URL)
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		citations = append(citations, core.Citation{
			Title:      result.Title,
			URL:        canonical,
			SourceType: sourceTypeExternal,
		})
	}

	if len(citations) == 0 && fallbackURL != "" {
		canonical := CanonicalURL(fallbackURL)
		citations = append(citations, core.Citation{
			Title:      titleFromURL(canonical),
			URL:        canonical,
			SourceType: sourceTypeInternal,
		})
	}
	return citations
}

// CanonicalURL strips query strings, fragments and trailing slashes so
// duplicate sources collapse to one citation.
func CanonicalURL(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = urlSuffix.ReplaceAllString(cleaned, "")
	if strings.HasSuffix(cleaned, "/") && len(cleaned) > len("https://")+1 {
		cleaned = strings.TrimRight(cleaned, "/")
	}
	return cleaned
}

func hostOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Host
}

func titleFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return titleCaser.String(strings.ReplaceAll(segments[0], "-", " "))
	}
	return parsed.Host
}
