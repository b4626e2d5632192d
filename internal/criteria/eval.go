package criteria

import (
	"strings"

	"github.com/fileops/dupefind/internal/candidate"
)

// Apply runs a compiled Program against a group of candidates and returns
// the marked subset: possibly empty only when group itself is empty,
// otherwise always a non-empty subset of group. Each phrase narrows the
// running marked set; a phrase that would eliminate every remaining
// candidate is treated as a no-op instead, and evaluation short-circuits
// once one candidate remains.
func Apply(program Program, group []*candidate.Candidate) []*candidate.Candidate {
	marked := group
	for _, phrase := range program.Phrases {
		if len(marked) <= 1 {
			break
		}
		survivors := applyPhrase(phrase, marked)
		if len(survivors) > 0 {
			marked = survivors
		}
	}
	return marked
}

func applyPhrase(phrase Phrase, group []*candidate.Candidate) []*candidate.Candidate {
	if phrase.Extrema {
		return applyExtrema(phrase, group)
	}
	return applyBoolean(phrase, group)
}

func applyBoolean(phrase Phrase, group []*candidate.Candidate) []*candidate.Candidate {
	var survivors []*candidate.Candidate
	for _, c := range group {
		if booleanHolds(phrase, c) {
			survivors = append(survivors, c)
		}
	}
	return survivors
}

func booleanHolds(phrase Phrase, c *candidate.Candidate) bool {
	value := propertyString(c, phrase.Property)
	arg := phrase.Argument

	var result bool
	switch phrase.Operator {
	case OpIs:
		result = compareStrings(value, arg, phrase.IgnoreCase) == 0
	case OpContains:
		result = containsFold(value, arg, phrase.IgnoreCase)
	case OpStartsWith:
		result = hasPrefixFold(value, arg, phrase.IgnoreCase)
	case OpEndsWith:
		result = hasSuffixFold(value, arg, phrase.IgnoreCase)
	case OpMatches:
		result = phrase.Regex.MatchString(value)
	}

	if phrase.Negate {
		return !result
	}
	return result
}

func compareStrings(a, b string, ignoreCase bool) int {
	if ignoreCase {
		a, b = strings.ToLower(a), strings.ToLower(b)
	}
	return strings.Compare(a, b)
}

func containsFold(value, arg string, ignoreCase bool) bool {
	if ignoreCase {
		return strings.Contains(strings.ToLower(value), strings.ToLower(arg))
	}
	return strings.Contains(value, arg)
}

func hasPrefixFold(value, arg string, ignoreCase bool) bool {
	if ignoreCase {
		return strings.HasPrefix(strings.ToLower(value), strings.ToLower(arg))
	}
	return strings.HasPrefix(value, arg)
}

func hasSuffixFold(value, arg string, ignoreCase bool) bool {
	if ignoreCase {
		return strings.HasSuffix(strings.ToLower(value), strings.ToLower(arg))
	}
	return strings.HasSuffix(value, arg)
}

// applyExtrema computes each candidate's key under the phrase's metric,
// finds the extremal key, and keeps every candidate whose key ties it.
func applyExtrema(phrase Phrase, group []*candidate.Candidate) []*candidate.Candidate {
	switch phrase.Metric {
	case MetricLength:
		return extremaByInt(group, phrase.Picks, func(c *candidate.Candidate) int64 {
			return int64(len(propertyString(c, phrase.Property)))
		})
	case MetricDepth:
		return extremaByInt(group, phrase.Picks, func(c *candidate.Candidate) int64 {
			return int64(strings.Count(propertyString(c, phrase.Property), "/"))
		})
	case MetricNatural:
		return applyNaturalExtrema(phrase, group)
	default:
		return group
	}
}

func applyNaturalExtrema(phrase Phrase, group []*candidate.Candidate) []*candidate.Candidate {
	if phrase.Property.kind() == KindString {
		return extremaByString(group, phrase.Picks, phrase.IgnoreCase, func(c *candidate.Candidate) string {
			return propertyString(c, phrase.Property)
		})
	}
	return extremaByInt(group, phrase.Picks, func(c *candidate.Candidate) int64 {
		return propertyInt(c, phrase.Property)
	})
}

func extremaByInt(group []*candidate.Candidate, picks Extrema, key func(*candidate.Candidate) int64) []*candidate.Candidate {
	if len(group) == 0 {
		return nil
	}
	best := key(group[0])
	for _, c := range group[1:] {
		k := key(c)
		if (picks == ExtremaMin && k < best) || (picks == ExtremaMax && k > best) {
			best = k
		}
	}
	var survivors []*candidate.Candidate
	for _, c := range group {
		if key(c) == best {
			survivors = append(survivors, c)
		}
	}
	return survivors
}

func extremaByString(group []*candidate.Candidate, picks Extrema, ignoreCase bool, key func(*candidate.Candidate) string) []*candidate.Candidate {
	if len(group) == 0 {
		return nil
	}
	fold := func(s string) string {
		if ignoreCase {
			return strings.ToLower(s)
		}
		return s
	}
	best := fold(key(group[0]))
	for _, c := range group[1:] {
		k := fold(key(c))
		if (picks == ExtremaMin && k < best) || (picks == ExtremaMax && k > best) {
			best = k
		}
	}
	var survivors []*candidate.Candidate
	for _, c := range group {
		if fold(key(c)) == best {
			survivors = append(survivors, c)
		}
	}
	return survivors
}

// propertyString extracts the string-typed value of a property from a
// candidate's primary path. Path separators are assumed to be '/', the
// convention every candidate path in this codebase is built with.
func propertyString(c *candidate.Candidate, prop Property) string {
	path := c.Path
	switch prop {
	case PropPath:
		return path
	case PropName:
		if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
			return path[idx+1:]
		}
		return path
	case PropDirectory:
		if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
			return path[:idx+1]
		}
		return ""
	case PropDirectoryName:
		idx := strings.LastIndexByte(path, '/')
		if idx < 0 {
			return ""
		}
		rest := path[:idx]
		idx2 := strings.LastIndexByte(rest, '/')
		return rest[idx2+1:]
	case PropExtension:
		name := path
		if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
			name = path[idx+1:]
		}
		dot := strings.LastIndexByte(name, '.')
		if dot <= 0 {
			return ""
		}
		return name[dot:]
	default:
		return ""
	}
}

// propertyInt extracts the int64-comparable value of a non-string property.
func propertyInt(c *candidate.Candidate, prop Property) int64 {
	switch prop {
	case PropMTime:
		return c.ModTime.UnixNano()
	case PropIndex:
		return int64(c.RootIndex)
	default:
		return 0
	}
}
