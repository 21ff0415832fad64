package grammar

import (
	"regexp"

	"github.com/geistfabrik/geistfabrik/internal/hostfunc"
	"github.com/geistfabrik/geistfabrik/internal/model"
)

var (
	// wikiLinkRe captures the full link target up to a "|" display
	// separator or the closing "]]", including any "#heading" suffix: a
	// virtual note's ObsidianLink() is "<stem>#<heading>", and the whole
	// string must be kept intact to match that note's link exactly.
	wikiLinkRe   = regexp.MustCompile(`\[\[([^\]|]+)`)
	unexpandedRe = regexp.MustCompile(`#[A-Za-z0-9_.]+#`)
)

// Suggest expands doc.Origin doc.Count times against vault using engine,
// producing one Suggestion per successful expansion. Expansions that still
// contain an unexpanded #symbol# placeholder (an empty/unknown symbol) are
// discarded rather than surfaced as suggestions.
func Suggest(engine *Engine, doc *Document, geistID string, vault hostfunc.Vault) ([]model.Suggestion, error) {
	var suggestions []model.Suggestion
	for i := 0; i < doc.Count; i++ {
		text, err := engine.Expand("#" + doc.Origin + "#")
		if err != nil {
			return nil, err
		}
		if unexpandedRe.MatchString(text) {
			continue
		}
		suggestions = append(suggestions, model.Suggestion{
			Text:    text,
			Notes:   extractNoteRefs(text),
			GeistID: geistID,
		})
	}
	return suggestions, nil
}

// extractNoteRefs pulls the target portion of every [[target]] or
// [[target|display]] wiki link out of text.
func extractNoteRefs(text string) []string {
	matches := wikiLinkRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, m[1])
	}
	return refs
}
