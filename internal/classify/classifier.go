// Package classify labels query text with an intent category used to bias
// retrieval and response shaping. Classification is rule-based and
// deterministic: no model call, no randomness.
package classify

import (
	"strings"
	"unicode"
)

// Category is a query intent label.
type Category string

const (
	Skills     Category = "skills"
	Experience Category = "experience"
	Education  Category = "education"
	General    Category = "general"
)

// priority is the fixed resolution order when several categories match.
var priority = []Category{Skills, Experience, Education}

// vocab maps each category to the word forms that signal it. Matching is
// whole-word and case-insensitive; variant forms are listed explicitly
// instead of stemming so behavior stays predictable.
var vocab = map[Category][]string{
	Skills: {
		"skill", "skills", "technology", "technologies", "programming",
		"language", "languages", "framework", "frameworks", "tool", "tools",
		"proficient", "proficiency", "expertise", "stack", "competencies",
	},
	Experience: {
		"experience", "work", "worked", "working", "job", "jobs",
		"employment", "employer", "career", "role", "roles", "company",
		"companies", "position", "positions", "responsibilities",
	},
	Education: {
		"education", "educational", "degree", "degrees", "university",
		"college", "school", "studied", "study", "certification",
		"certifications", "certificate", "course", "courses", "graduated",
	},
}

// Classify returns the category for a query. When words from several
// categories appear, the highest-priority category wins
// (skills > experience > education); no match yields General.
func Classify(text string) Category {
	words := tokenize(text)
	for _, cat := range priority {
		if matchesAny(words, vocab[cat]) {
			return cat
		}
	}
	return General
}

// TagText returns every category whose vocabulary the text matches, in
// priority order. Chunks tagged at ingest time carry all applicable
// categories; text matching nothing returns nil and is reachable only through
// unfiltered retrieval.
func TagText(text string) []Category {
	words := tokenize(text)
	var tags []Category
	for _, cat := range priority {
		if matchesAny(words, vocab[cat]) {
			tags = append(tags, cat)
		}
	}
	return tags
}

// Tags converts a category list to plain strings for persistence.
func Tags(cats []Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

func matchesAny(words map[string]bool, keywords []string) bool {
	for _, kw := range keywords {
		if words[kw] {
			return true
		}
	}
	return false
}

// tokenize lowercases text and splits it into a word set on any
// non-alphanumeric rune, so "skills," and "Skills" both match "skills" while
// "skillet" does not.
func tokenize(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
