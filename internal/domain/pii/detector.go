package pii

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Span is one detected entity occurrence inside a string.
type Span struct {
	Entity     EntityType
	Start      int
	End        int
	Confidence float64
}

// pattern pairs a compiled regex with its entity metadata. An optional
// validate hook rejects matches that pass the regex but fail a stronger
// check (Luhn, IP octet range).
type pattern struct {
	entity     EntityType
	re         *regexp.Regexp
	confidence float64
	validate   func(match string) bool
}

// Detector finds sensitive substrings with a fixed, deterministic
// pattern set. Detection is a pure function of the input text: the same
// text always yields the same spans, which keeps findings stable for
// audit replay.
type Detector struct {
	patterns []pattern
}

// Pattern order doubles as priority: when spans overlap, the earlier
// entity wins.
var defaultPatterns = []pattern{
	{
		entity:     EntitySSN,
		re:         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		confidence: 0.85,
	},
	{
		entity:     EntityCreditCard,
		re:         regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
		confidence: 0.95,
		validate:   luhnValid,
	},
	{
		entity:     EntityEmail,
		re:         regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		confidence: 0.9,
	},
	{
		entity:     EntityIBAN,
		re:         regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
		confidence: 0.7,
	},
	{
		entity:     EntityIPAddress,
		re:         regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		confidence: 0.8,
		validate:   ipOctetsValid,
	},
	{
		entity:     EntityPhone,
		re:         regexp.MustCompile(`\b(?:\+1[-.]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
		confidence: 0.75,
	},
	{
		entity:     EntityPassport,
		re:         regexp.MustCompile(`\b[A-Z]\d{8}\b`),
		confidence: 0.6,
	},
}

// fastEntities is the reduced detector set used once the scan deadline
// has been exceeded: the highest-severity entities only.
var fastEntities = map[EntityType]bool{
	EntitySSN:        true,
	EntityCreditCard: true,
	EntityEmail:      true,
}

// NewDetector creates a detector with the full default pattern set.
func NewDetector() *Detector {
	return &Detector{patterns: defaultPatterns}
}

// Detect returns all entity spans found in text, sorted by start offset,
// with overlaps resolved in pattern-priority order.
func (d *Detector) Detect(text string) []Span {
	return d.detect(text, false)
}

// DetectFast scans with the reduced high-severity pattern subset.
func (d *Detector) DetectFast(text string) []Span {
	return d.detect(text, true)
}

func (d *Detector) detect(text string, fastOnly bool) []Span {
	var spans []Span
	for _, p := range d.patterns {
		if fastOnly && !fastEntities[p.entity] {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			match := text[loc[0]:loc[1]]
			if p.validate != nil && !p.validate(match) {
				continue
			}
			if overlapsAny(spans, loc[0], loc[1]) {
				continue
			}
			spans = append(spans, Span{
				Entity:     p.entity,
				Start:      loc[0],
				End:        loc[1],
				Confidence: p.confidence,
			})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

func overlapsAny(spans []Span, start, end int) bool {
	for _, s := range spans {
		if start < s.End && end > s.Start {
			return true
		}
	}
	return false
}

// luhnValid runs the Luhn checksum over the digits of a candidate card
// number, ignoring separators.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ipOctetsValid rejects dotted quads with any octet above 255.
func ipOctetsValid(s string) bool {
	for _, part := range strings.Split(s, ".") {
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}
