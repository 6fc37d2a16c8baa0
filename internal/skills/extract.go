// Package skills derives a skill profile from indexed chunks and scores how
// well a requested skill list matches it. Extraction is a best-effort
// heuristic projection of the corpus: it may under- or over-report, but it is
// deterministic for a given generation.
package skills

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/vitaelabs/vitae/internal/classify"
	"github.com/vitaelabs/vitae/internal/index"
)

// Skill is one extracted skill with the chunks it was seen in.
type Skill struct {
	Name     string   `json:"name"`
	Evidence []string `json:"evidence_chunk_ids"`

	key string
}

// Profile is the set of skills extracted from one index generation, in the
// order they first appear in the corpus.
type Profile struct {
	skills []Skill
	byKey  map[string]int
}

func (p *Profile) Len() int {
	return len(p.skills)
}

// Skills returns the extracted skills in corpus order.
func (p *Profile) Skills() []Skill {
	return p.skills
}

// Names returns just the skill names in corpus order.
func (p *Profile) Names() []string {
	names := make([]string, len(p.skills))
	for i, s := range p.skills {
		names[i] = s.Name
	}
	return names
}

func (p *Profile) add(name, chunkID string) {
	key := normalizeToken(name)
	if key == "" {
		return
	}
	if i, ok := p.byKey[key]; ok {
		ev := p.skills[i].Evidence
		if len(ev) == 0 || ev[len(ev)-1] != chunkID {
			p.skills[i].Evidence = append(ev, chunkID)
		}
		return
	}
	if p.byKey == nil {
		p.byKey = make(map[string]int)
	}
	p.byKey[key] = len(p.skills)
	p.skills = append(p.skills, Skill{Name: name, Evidence: []string{chunkID}, key: key})
}

// Extract scans skills-tagged entries for skill mentions. The rule table:
// segments split on list separators, label prefixes and framing words
// stripped, then a segment is kept when it looks like a technology name or a
// short proper-noun run.
func Extract(entries []index.Entry) Profile {
	var p Profile
	for i := range entries {
		e := &entries[i]
		if !e.HasCategory(classify.Skills) {
			continue
		}
		for _, segment := range splitSegments(e.Text) {
			if name, ok := cleanSegment(segment); ok {
				p.add(name, e.ChunkID)
			}
		}
	}
	return p
}

// segmentRe splits candidate text on commas, semicolons, pipes, newlines,
// mid-line bullets, and the word "and". Dots and slashes are kept so names
// like React.js and CI/CD survive.
var segmentRe = regexp.MustCompile(`[,;|\n\r]+|\s+[-*•·]\s+|(?i)\s+and\s+`)

func splitSegments(text string) []string {
	return segmentRe.Split(text, -1)
}

// stopwords are framing words that never name a skill by themselves and are
// stripped from segment edges.
var stopwords = map[string]bool{
	"skill": true, "skills": true, "etc": true, "and": true, "with": true,
	"in": true, "of": true, "the": true, "a": true, "an": true,
	"various": true, "other": true, "using": true, "used": true,
	"technologies": true, "technology": true, "tools": true, "tool": true,
	"languages": true, "language": true, "frameworks": true, "framework": true,
	"including": true, "include": true, "includes": true,
	"proficient": true, "proficiency": true, "experienced": true,
	"experience": true, "knowledge": true, "familiar": true, "familiarity": true,
	"expert": true, "expertise": true, "strong": true, "years": true,
}

// cleanSegment normalizes one candidate segment and decides whether it names
// a skill.
func cleanSegment(segment string) (string, bool) {
	s := strings.TrimSpace(segment)

	// Drop a leading label ("Skills: Go" -> "Go").
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimLeft(s, " \t-–—*•·!?:;()[]")
	s = strings.TrimRight(s, " \t-–—*•·.!?:;()[]")

	// Strip framing stopwords from both edges ("Proficient in Python" -> "Python").
	words := strings.Fields(s)
	for len(words) > 0 && stopwords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for len(words) > 0 && stopwords[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	if len(words) == 0 || len(words) > 4 {
		return "", false
	}

	s = strings.Join(words, " ")
	if n := len([]rune(s)); n < 2 || n > 40 {
		return "", false
	}
	if normalizeToken(s) == "" {
		return "", false
	}

	if len(words) == 1 {
		// A lone list item in a skills chunk is taken as-is: resumes list
		// plain names like "python" or "Kubernetes".
		return s, true
	}
	for _, w := range words {
		if isTechWord(w) {
			return s, true
		}
	}
	if allTitlecase(words) {
		return s, true
	}
	return "", false
}

var (
	// dotted names: React.js, Node.JS, Socket.io, ASP.NET
	dottedTechRe = regexp.MustCompile(`(?i)^[a-z0-9+#-]+\.(js|ts|net|io|py|rb)$`)
	// letter-digit mixes: HTML5, ES6, S3, Python3
	alnumTechRe = regexp.MustCompile(`(?i)^[a-z]+[0-9]+[a-z0-9]*$`)
	// symbol names: C++, C#, F#, .NET
	symbolTechRe = regexp.MustCompile(`(?i)^(\.[a-z]+|[a-z]+(\+\+|#))$`)
)

func isTechWord(w string) bool {
	return dottedTechRe.MatchString(w) || alnumTechRe.MatchString(w) || symbolTechRe.MatchString(w)
}

func allTitlecase(words []string) bool {
	for _, w := range words {
		r := []rune(w)[0]
		if !unicode.IsUpper(r) && !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

// normalizeToken lowercases s and strips every non-alphanumeric rune; the
// canonical comparison form ("React.js" -> "reactjs").
func normalizeToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
