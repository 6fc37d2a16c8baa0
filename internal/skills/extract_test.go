package skills

import (
	"testing"

	"github.com/vitaelabs/vitae/internal/classify"
	"github.com/vitaelabs/vitae/internal/index"
)

func skillsEntry(chunkID, text string) index.Entry {
	return index.Entry{
		ChunkID:    chunkID,
		DocumentID: "d1",
		SourcePath: "resume.txt",
		Text:       text,
		Categories: []classify.Category{classify.Skills},
	}
}

func TestExtractCommaList(t *testing.T) {
	p := Extract([]index.Entry{skillsEntry("c1", "Proficient in Python, React, and AWS.")})

	want := []string{"Python", "React", "AWS"}
	got := p.Names()
	if len(got) != len(want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractBulletList(t *testing.T) {
	text := "Skills:\n- Go\n- Docker\n- PostgreSQL\n"
	p := Extract([]index.Entry{skillsEntry("c1", text)})

	want := []string{"Go", "Docker", "PostgreSQL"}
	got := p.Names()
	if len(got) != len(want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractLabelPrefix(t *testing.T) {
	p := Extract([]index.Entry{skillsEntry("c1", "Programming Languages: Python, JavaScript")})

	got := p.Names()
	if len(got) != 2 || got[0] != "Python" || got[1] != "JavaScript" {
		t.Errorf("Names = %v, want [Python JavaScript]", got)
	}
}

func TestExtractTechPatterns(t *testing.T) {
	p := Extract([]index.Entry{skillsEntry("c1", "React.js, C++, HTML5, .NET, CI/CD")})

	want := []string{"React.js", "C++", "HTML5", ".NET", "CI/CD"}
	got := p.Names()
	if len(got) != len(want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractMultiWordTitlecase(t *testing.T) {
	p := Extract([]index.Entry{skillsEntry("c1", "Amazon Web Services, machine learning pipelines in production, Google Cloud")})

	got := p.Names()
	if len(got) != 2 || got[0] != "Amazon Web Services" || got[1] != "Google Cloud" {
		t.Errorf("Names = %v, want [Amazon Web Services, Google Cloud]", got)
	}
}

// TestExtractDedupesCaseInsensitive verifies duplicate mentions collapse onto
// the first spelling with evidence accumulated per chunk.
func TestExtractDedupesCaseInsensitive(t *testing.T) {
	p := Extract([]index.Entry{
		skillsEntry("c1", "Skills: Python, Docker"),
		skillsEntry("c2", "Expert in python, kubernetes"),
	})

	got := p.Names()
	if len(got) != 3 {
		t.Fatalf("Names = %v, want 3 distinct skills", got)
	}
	if got[0] != "Python" {
		t.Errorf("first spelling = %q, want %q (first seen wins)", got[0], "Python")
	}

	py := p.Skills()[0]
	if len(py.Evidence) != 2 || py.Evidence[0] != "c1" || py.Evidence[1] != "c2" {
		t.Errorf("Python evidence = %v, want [c1 c2]", py.Evidence)
	}
}

func TestExtractIgnoresUntaggedEntries(t *testing.T) {
	entries := []index.Entry{
		{ChunkID: "c1", Text: "Python, Go, Rust", Categories: []classify.Category{classify.Experience}},
	}
	if p := Extract(entries); p.Len() != 0 {
		t.Errorf("extracted %v from non-skills chunk, want nothing", p.Names())
	}
}

func TestExtractRejectsProse(t *testing.T) {
	p := Extract([]index.Entry{skillsEntry("c1", "I have many skills that make me a great fit for this role")})

	if p.Len() != 0 {
		t.Errorf("extracted %v from prose, want nothing", p.Names())
	}
}

func TestExtractDeterministic(t *testing.T) {
	entries := []index.Entry{
		skillsEntry("c1", "Go, Python, Docker"),
		skillsEntry("c2", "Terraform, Go, Ansible"),
	}

	p1 := Extract(entries)
	p2 := Extract(entries)
	first := p1.Names()
	second := p2.Names()
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("order differs at %d: %q vs %q", i, first[i], second[i])
		}
	}
}
