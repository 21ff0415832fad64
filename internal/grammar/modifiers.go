package grammar

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// applyModifiers applies dot-chained modifiers left to right: capitalize,
// capitalizeAll, s, ed, a. The s and ed modifiers apply suffix rules only;
// there is no irregular-form table, so words like "child" or "go" get the
// regular suffix.
func applyModifiers(s string, mods []string) string {
	for _, mod := range mods {
		switch mod {
		case "capitalize":
			s = capitalize(s)
		case "capitalizeAll":
			s = capitalizeAll(s)
		case "s":
			s = pluralize(s)
		case "ed":
			s = pastTense(s)
		case "a":
			s = withArticle(s)
		}
	}
	return s
}

// capitalize upper-cases the first rune only, using golang.org/x/text's
// Unicode-aware title casing so non-ASCII note text capitalizes correctly.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return titleCaser.String(string(r[0])) + string(r[1:])
}

func capitalizeAll(s string) string {
	return titleCaser.String(s)
}

func pluralize(s string) string {
	switch {
	case strings.HasSuffix(s, "y") && len(s) > 1 && !isVowel(s[len(s)-2]):
		return s[:len(s)-1] + "ies"
	case strings.HasSuffix(s, "s"), strings.HasSuffix(s, "x"), strings.HasSuffix(s, "z"), strings.HasSuffix(s, "ch"), strings.HasSuffix(s, "sh"):
		return s + "es"
	default:
		return s + "s"
	}
}

func pastTense(s string) string {
	switch {
	case strings.HasSuffix(s, "e"):
		return s + "d"
	case strings.HasSuffix(s, "y") && len(s) > 1 && !isVowel(s[len(s)-2]):
		return s[:len(s)-1] + "ied"
	default:
		return s + "ed"
	}
}

func withArticle(s string) string {
	if s == "" {
		return s
	}
	if isVowel(s[0]) {
		return "an " + s
	}
	return "a " + s
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}
