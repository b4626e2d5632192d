package criteria

import (
	"testing"
	"time"

	"github.com/fileops/dupefind/internal/candidate"
)

func cand(path string) *candidate.Candidate {
	return &candidate.Candidate{Path: path}
}

func TestLexBackslashEscapes(t *testing.T) {
	toks, err := Lex(`name is foo\ bar`)
	if err != nil {
		t.Fatal(err)
	}
	if len(toks) != 3 || toks[2].Text != "foo bar" {
		t.Fatalf("got %+v", toks)
	}
}

func TestLexUnclosedQuote(t *testing.T) {
	if _, err := Lex(`name is "unterminated`); err == nil {
		t.Fatal("expected an error for an unclosed quote")
	}
}

func TestParseBooleanPhrase(t *testing.T) {
	prog, err := Parse(`name is "foo.txt"`)
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Phrases) != 1 {
		t.Fatalf("expected 1 phrase, got %d", len(prog.Phrases))
	}
	p := prog.Phrases[0]
	if p.Property != PropName || p.Operator != OpIs || p.Negate || p.Argument != "foo.txt" {
		t.Errorf("unexpected phrase: %+v", p)
	}
}

func TestParseNegatedMultiWordOperator(t *testing.T) {
	prog, err := Parse("path not starts with /tmp")
	if err != nil {
		t.Fatal(err)
	}
	p := prog.Phrases[0]
	if p.Operator != OpStartsWith || !p.Negate {
		t.Errorf("expected negated starts-with, got %+v", p)
	}
}

func TestParseMultiWordPropertyAndModifier(t *testing.T) {
	prog, err := Parse("directory name is foo ignoring case")
	if err != nil {
		t.Fatal(err)
	}
	p := prog.Phrases[0]
	if p.Property != PropDirectoryName || !p.IgnoreCase {
		t.Errorf("unexpected phrase: %+v", p)
	}
}

func TestParseExtremaPhrase(t *testing.T) {
	prog, err := Parse("shorter name")
	if err != nil {
		t.Fatal(err)
	}
	p := prog.Phrases[0]
	if !p.Extrema || p.Metric != MetricLength || p.Picks != ExtremaMin || p.Property != PropName {
		t.Errorf("unexpected phrase: %+v", p)
	}
}

func TestParseMultiplePhrases(t *testing.T) {
	prog, err := Parse("name contains foo, shallower path")
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Phrases) != 2 {
		t.Fatalf("expected 2 phrases, got %d", len(prog.Phrases))
	}
}

func TestParseEmptyPhraseIsError(t *testing.T) {
	if _, err := Parse("name is foo,"); err == nil {
		t.Fatal("expected an error for a trailing empty phrase")
	}
}

func TestParseUnknownPropertyIsError(t *testing.T) {
	if _, err := Parse("bogus is foo"); err == nil {
		t.Fatal("expected an error for an unknown property")
	}
}

func TestParseTrailingGarbageIsError(t *testing.T) {
	if _, err := Parse("name is foo bar"); err == nil {
		t.Fatal("expected an error for trailing garbage")
	}
}

func TestParseAdjectiveRejectsNonStringProperty(t *testing.T) {
	if _, err := Parse("shorter mtime"); err == nil {
		t.Fatal("expected an error: length adjective paired with a non-string property")
	}
}

func TestParseOperatorRejectsNonStringProperty(t *testing.T) {
	if _, err := Parse("mtime is foo"); err == nil {
		t.Fatal("expected an error: operator paired with a non-string property")
	}
}

func TestParseMatchesRegexCompilesEagerly(t *testing.T) {
	if _, err := Parse("name matches regex ("); err == nil {
		t.Fatal("expected a regex compilation error at parse time")
	}
}

func TestParseRegexIgnoreCaseInjectsPrefix(t *testing.T) {
	prog, err := Parse("name matches regex FOO ignoring case")
	if err != nil {
		t.Fatal(err)
	}
	if !prog.Phrases[0].Regex.MatchString("foo") {
		t.Error("expected case-insensitive regex to match lowercase input")
	}
}

// Scenario 1 (spec.md §8): no criteria applied leaves the whole group marked.
func TestApplyEmptyProgramKeepsWholeGroup(t *testing.T) {
	group := []*candidate.Candidate{cand("/a/foo.txt"), cand("/b/foo.txt")}
	marked := Apply(Program{}, group)
	if len(marked) != 2 {
		t.Fatalf("expected both candidates kept, got %d", len(marked))
	}
}

func TestApplyBooleanNarrowsToSingleSurvivor(t *testing.T) {
	prog, err := Parse(`directory is "/keep/"`)
	if err != nil {
		t.Fatal(err)
	}
	group := []*candidate.Candidate{cand("/keep/foo.txt"), cand("/discard/foo.txt")}
	marked := Apply(prog, group)
	if len(marked) != 1 || marked[0].Path != "/keep/foo.txt" {
		t.Fatalf("unexpected marked set: %+v", marked)
	}
}

// Scenario 4 (spec.md §8): a phrase that eliminates every candidate is a
// no-op, preserving a tie rather than leaving nothing marked.
func TestApplyPhraseEliminatingAllIsNoOp(t *testing.T) {
	prog, err := Parse(`name is "nonexistent"`)
	if err != nil {
		t.Fatal(err)
	}
	group := []*candidate.Candidate{cand("/a/foo.txt"), cand("/b/foo.txt")}
	marked := Apply(prog, group)
	if len(marked) != 2 {
		t.Fatalf("expected the no-op rule to preserve both, got %d", len(marked))
	}
}

func TestApplyShortCircuitsOnSingleSurvivor(t *testing.T) {
	prog, err := Parse(`directory is "/keep/", name is "never-checked"`)
	if err != nil {
		t.Fatal(err)
	}
	group := []*candidate.Candidate{cand("/keep/foo.txt"), cand("/discard/foo.txt")}
	marked := Apply(prog, group)
	if len(marked) != 1 || marked[0].Path != "/keep/foo.txt" {
		t.Fatalf("unexpected marked set: %+v", marked)
	}
}

func TestApplyCaseInsensitiveIs(t *testing.T) {
	prog, err := Parse(`name is "FOO" ignoring case`)
	if err != nil {
		t.Fatal(err)
	}
	group := []*candidate.Candidate{cand("/a/foo"), cand("/b/bar")}
	marked := Apply(prog, group)
	if len(marked) != 1 || marked[0].Path != "/a/foo" {
		t.Fatalf("unexpected marked set: %+v", marked)
	}
}

func TestApplyShorterAdjectiveKeepsTies(t *testing.T) {
	prog, err := Parse("shorter name")
	if err != nil {
		t.Fatal(err)
	}
	group := []*candidate.Candidate{cand("/a/ab"), cand("/b/ab"), cand("/c/abcdef")}
	marked := Apply(prog, group)
	if len(marked) != 2 {
		t.Fatalf("expected a tie between the two shortest names, got %d", len(marked))
	}
}

func TestApplyEarlierMTime(t *testing.T) {
	prog, err := Parse("earlier mtime")
	if err != nil {
		t.Fatal(err)
	}
	older := &candidate.Candidate{Path: "/a/old.txt", ModTime: time.Unix(100, 0)}
	newer := &candidate.Candidate{Path: "/b/new.txt", ModTime: time.Unix(200, 0)}
	marked := Apply(prog, []*candidate.Candidate{older, newer})
	if len(marked) != 1 || marked[0] != older {
		t.Fatalf("expected the older file kept, got %+v", marked)
	}
}

func TestApplyHigherIndex(t *testing.T) {
	prog, err := Parse("higher index")
	if err != nil {
		t.Fatal(err)
	}
	first := &candidate.Candidate{Path: "/a/f.txt", RootIndex: 1}
	second := &candidate.Candidate{Path: "/b/f.txt", RootIndex: 2}
	marked := Apply(prog, []*candidate.Candidate{first, second})
	if len(marked) != 1 || marked[0] != second {
		t.Fatalf("expected the second root's candidate kept, got %+v", marked)
	}
}

func TestPropertyDirectoryName(t *testing.T) {
	c := cand("/a/b/c/foo.txt")
	if got := propertyString(c, PropDirectoryName); got != "c" {
		t.Errorf("directory name = %q, want %q", got, "c")
	}
}

func TestPropertyExtensionNoDot(t *testing.T) {
	c := cand("/a/Makefile")
	if got := propertyString(c, PropExtension); got != "" {
		t.Errorf("extension = %q, want empty", got)
	}
}

func TestPropertyExtensionLeadingDot(t *testing.T) {
	c := cand("/a/.gitignore")
	if got := propertyString(c, PropExtension); got != "" {
		t.Errorf("extension = %q, want empty for a leading dot", got)
	}
}

func TestPropertyExtensionOrdinary(t *testing.T) {
	c := cand("/a/archive.tar.gz")
	if got := propertyString(c, PropExtension); got != ".gz" {
		t.Errorf("extension = %q, want %q", got, ".gz")
	}
}
