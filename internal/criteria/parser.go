package criteria

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the value type a Property yields from a candidate.
type Kind int

const (
	KindString Kind = iota
	KindTime
	KindInt
)

// Property identifies one of the candidate attributes a phrase inspects.
type Property int

const (
	PropPath Property = iota
	PropName
	PropDirectory
	PropDirectoryName
	PropExtension
	PropMTime
	PropIndex
)

func (p Property) kind() Kind {
	switch p {
	case PropMTime:
		return KindTime
	case PropIndex:
		return KindInt
	default:
		return KindString
	}
}

var properties = map[string]Property{
	"path":                PropPath,
	"name":                PropName,
	"directory":           PropDirectory,
	"directory name":      PropDirectoryName,
	"extension":           PropExtension,
	"mtime":               PropMTime,
	"modification time":   PropMTime,
	"index":               PropIndex,
}

const maxPropertyWords = 2

// Operator identifies a boolean-phrase string comparison.
type Operator int

const (
	OpIs Operator = iota
	OpContains
	OpStartsWith
	OpEndsWith
	OpMatches
)

type operatorSpec struct {
	op     Operator
	negate bool
}

var operators = map[string]operatorSpec{
	"is":             {OpIs, false},
	"is not":         {OpIs, true},
	"contains":       {OpContains, false},
	"not contains":   {OpContains, true},
	"starts with":    {OpStartsWith, false},
	"not starts with": {OpStartsWith, true},
	"ends with":        {OpEndsWith, false},
	"not ends with":    {OpEndsWith, true},
	"matches re":         {OpMatches, false},
	"not matches re":     {OpMatches, true},
	"matches regex":      {OpMatches, false},
	"not matches regex":  {OpMatches, true},
	"matches regexp":     {OpMatches, false},
	"not matches regexp": {OpMatches, true},
}

const maxOperatorWords = 3

// Metric identifies what an extrema adjective measures.
type Metric int

const (
	MetricLength Metric = iota
	MetricDepth
	MetricNatural
)

// Extrema identifies whether an adjective seeks the minimum or maximum key.
type Extrema int

const (
	ExtremaMin Extrema = iota
	ExtremaMax
)

type adjectiveSpec struct {
	metric  Metric
	extrema Extrema
}

var adjectives = map[string]adjectiveSpec{
	"shorter":   {MetricLength, ExtremaMin},
	"longer":    {MetricLength, ExtremaMax},
	"shallower": {MetricDepth, ExtremaMin},
	"deeper":    {MetricDepth, ExtremaMax},
	"earlier":   {MetricNatural, ExtremaMin},
	"lower":     {MetricNatural, ExtremaMin},
	"later":     {MetricNatural, ExtremaMax},
	"higher":    {MetricNatural, ExtremaMax},
}

const maxAdjectiveWords = 1

const modifierText = "ignoring case"

// ParseError reports a grammar failure at a rune position in the original
// criteria string, for a position-bearing diagnostic.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string { return fmt.Sprintf("criteria: %s (at position %d)", e.Msg, e.Pos) }

// Phrase is one compiled element of a Program: either a boolean test or an
// extrema selector.
type Phrase struct {
	Extrema bool

	// Boolean phrase fields.
	Property   Property
	Operator   Operator
	Negate     bool
	Argument   string
	Regex      *regexp.Regexp // compiled when Operator == OpMatches

	// Extrema phrase fields.
	Metric  Metric
	Picks   Extrema

	IgnoreCase bool
}

// Program is a compiled, immutable sequence of phrases ready for repeated
// evaluation against groups.
type Program struct {
	Phrases []Phrase
}

// Parse compiles a free-text criteria string into a Program. Parse errors
// carry the rune offset of the offending token.
func Parse(input string) (Program, error) {
	tokens, err := Lex(input)
	if err != nil {
		return Program{}, err
	}

	var phrases []Phrase
	var current []Token
	flush := func(endPos int) error {
		if len(current) == 0 {
			return &ParseError{Pos: endPos, Msg: "empty phrase"}
		}
		phrase, err := parsePhrase(current)
		if err != nil {
			return err
		}
		phrases = append(phrases, phrase)
		current = nil
		return nil
	}

	for _, tok := range tokens {
		if tok.Kind == TokComma {
			if err := flush(tok.Pos); err != nil {
				return Program{}, err
			}
			continue
		}
		current = append(current, tok)
	}
	endPos := len([]rune(input))
	if err := flush(endPos); err != nil {
		return Program{}, err
	}

	return Program{Phrases: phrases}, nil
}

func parsePhrase(words []Token) (Phrase, error) {
	if adj, n, ok := matchAdjective(words, 0); ok {
		return parseExtremaPhrase(words, adj, n)
	}
	return parseBooleanPhrase(words)
}

func parseExtremaPhrase(words []Token, adj adjectiveSpec, consumedAdj int) (Phrase, error) {
	prop, propWords, ok := matchProperty(words, consumedAdj)
	if !ok {
		return Phrase{}, &ParseError{Pos: words[consumedAdj].Pos, Msg: "unknown property"}
	}
	idx := consumedAdj + propWords

	if adj.metric == MetricDepth && prop.kind() != KindString {
		return Phrase{}, &ParseError{Pos: words[0].Pos, Msg: "adjective requires a string property"}
	}
	if adj.metric == MetricLength && prop.kind() != KindString {
		return Phrase{}, &ParseError{Pos: words[0].Pos, Msg: "adjective requires a string property"}
	}

	ignoreCase, idx, err := consumeOptionalModifier(words, idx)
	if err != nil {
		return Phrase{}, err
	}

	return Phrase{
		Extrema:    true,
		Property:   prop,
		Metric:     adj.metric,
		Picks:      adj.extrema,
		IgnoreCase: ignoreCase,
	}, checkTrailing(words, idx)
}

func parseBooleanPhrase(words []Token) (Phrase, error) {
	prop, propWords, ok := matchProperty(words, 0)
	if !ok {
		return Phrase{}, &ParseError{Pos: words[0].Pos, Msg: "unknown property"}
	}
	idx := propWords

	if prop.kind() != KindString {
		return Phrase{}, &ParseError{Pos: words[0].Pos, Msg: "operator requires a string property"}
	}

	if idx >= len(words) {
		return Phrase{}, &ParseError{Pos: words[len(words)-1].Pos, Msg: "missing operator"}
	}
	opSpec, opWords, ok := matchOperator(words, idx)
	if !ok {
		return Phrase{}, &ParseError{Pos: words[idx].Pos, Msg: "unknown operator"}
	}
	idx += opWords

	if idx >= len(words) {
		return Phrase{}, &ParseError{Pos: words[idx-1].Pos, Msg: "missing argument"}
	}
	argument := words[idx].Text
	idx++

	ignoreCase, idx, err := consumeOptionalModifier(words, idx)
	if err != nil {
		return Phrase{}, err
	}
	if err := checkTrailing(words, idx); err != nil {
		return Phrase{}, err
	}

	phrase := Phrase{
		Property:   prop,
		Operator:   opSpec.op,
		Negate:     opSpec.negate,
		Argument:   argument,
		IgnoreCase: ignoreCase,
	}

	if opSpec.op == OpMatches {
		pattern := argument
		if ignoreCase {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Phrase{}, &ParseError{Pos: words[idx-1].Pos, Msg: "regex compilation failure: " + err.Error()}
		}
		phrase.Regex = re
	}

	return phrase, nil
}

func consumeOptionalModifier(words []Token, idx int) (ignoreCase bool, next int, err error) {
	if idx >= len(words) {
		return false, idx, nil
	}
	if matchesExact(words, idx, modifierText) {
		return true, idx + 2, nil
	}
	return false, idx, nil
}

func checkTrailing(words []Token, idx int) error {
	if idx < len(words) {
		return &ParseError{Pos: words[idx].Pos, Msg: "trailing garbage"}
	}
	return nil
}

func matchesExact(words []Token, start int, phrase string) bool {
	parts := strings.Split(phrase, " ")
	if start+len(parts) > len(words) {
		return false
	}
	for i, p := range parts {
		if words[start+i].Text != p {
			return false
		}
	}
	return true
}

func matchProperty(words []Token, start int) (Property, int, bool) {
	for n := min(maxPropertyWords, len(words)-start); n >= 1; n-- {
		if p, ok := properties[joinWords(words, start, n)]; ok {
			return p, n, true
		}
	}
	return 0, 0, false
}

func matchOperator(words []Token, start int) (operatorSpec, int, bool) {
	for n := min(maxOperatorWords, len(words)-start); n >= 1; n-- {
		if op, ok := operators[joinWords(words, start, n)]; ok {
			return op, n, true
		}
	}
	return operatorSpec{}, 0, false
}

func matchAdjective(words []Token, start int) (adjectiveSpec, int, bool) {
	for n := min(maxAdjectiveWords, len(words)-start); n >= 1; n-- {
		if adj, ok := adjectives[joinWords(words, start, n)]; ok {
			return adj, n, true
		}
	}
	return adjectiveSpec{}, 0, false
}

func joinWords(words []Token, start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = words[start+i].Text
	}
	return strings.Join(parts, " ")
}
