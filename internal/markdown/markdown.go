// Package markdown extracts title, content, wiki-links, and tags from a
// single note's raw Markdown text.
package markdown

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/geistfabrik/geistfabrik/internal/model"

	"gopkg.in/yaml.v3"
)

var (
	h1Re     = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	tagRe    = regexp.MustCompile(`#([A-Za-z0-9_/-]+)`)
	wikiLink = regexp.MustCompile(`(!?)\[\[([^\]|#^]*)(#[^\]|^]*)?(\^[^\]|]*)?(\|[^\]]*)?\]\]`)
)

// Parse extracts (title, content, links, tags) from a note's raw text,
// deriving the title's fallback stem from path. Frontmatter, if present and
// well-formed, is stripped from content and consulted for title/tags.
func Parse(path, rawText string) (title, content string, links []model.Link, tags []string) {
	fm, body := splitFrontmatter(rawText)

	title = titleOf(fm, body, path)
	links = extractLinks(body)
	tags = extractTags(fm, body)

	return title, body, links, tags
}

type frontmatter map[string]interface{}

// splitFrontmatter returns the parsed frontmatter (nil if absent or
// malformed) and the remaining body. Frontmatter exists iff the text begins
// with a line that is exactly "---" followed later by another such line;
// anything else is treated as absent, and the original text is returned
// unchanged as content.
func splitFrontmatter(text string) (frontmatter, string) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r") != "---" {
		return nil, text
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r") == "---" {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, text
	}

	raw := strings.Join(lines[1:end], "\n")
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil || fm == nil {
		return nil, text
	}

	body := strings.Join(lines[end+1:], "\n")
	return fm, strings.TrimPrefix(body, "\n")
}

func titleOf(fm frontmatter, body, path string) string {
	if fm != nil {
		if t, ok := fm["title"].(string); ok && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	}
	if m := h1Re.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	stem := filepath.Base(path)
	return strings.TrimSuffix(stem, filepath.Ext(stem))
}

func extractLinks(body string) []model.Link {
	var links []model.Link
	for _, m := range wikiLink.FindAllStringSubmatch(body, -1) {
		target := strings.TrimSpace(m[2])
		if target == "" {
			continue
		}
		l := model.Link{
			Target:  target,
			IsEmbed: m[1] == "!",
		}
		if m[4] != "" {
			l.BlockRef = strings.TrimPrefix(m[4], "^")
		}
		if m[5] != "" {
			l.DisplayText = strings.TrimSpace(strings.TrimPrefix(m[5], "|"))
		}
		links = append(links, l)
	}
	return links
}

// FrontmatterTags returns only the frontmatter-declared tags for rawText,
// without scanning the body for inline #tag occurrences. Used by the
// date-collection splitter, which unions this against each virtual entry's
// own inline tags rather than the whole file's.
func FrontmatterTags(rawText string) []string {
	fm, _ := splitFrontmatter(rawText)
	return extractTags(fm, "")
}

func extractTags(fm frontmatter, body string) []string {
	set := map[string]struct{}{}

	if fm != nil {
		switch v := fm["tags"].(type) {
		case string:
			if t := strings.TrimSpace(v); t != "" {
				set[t] = struct{}{}
			}
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					set[strings.TrimSpace(s)] = struct{}{}
				}
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		set[m[1]] = struct{}{}
	}

	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
