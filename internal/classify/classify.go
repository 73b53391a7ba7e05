// Package classify reduces the raw completions of one item to a score:
// a yes/no/unknown decision per sample, or a Likert bin distribution with
// an optional agreement statistic.
package classify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the score flavor.
type Kind string

const (
	KindBoolean Kind = "boolean"
	KindLikert  Kind = "likert"
	// KindCheck records the verbatim first reply of a text check.
	KindCheck Kind = "check"
)

// LikertBins is the number of Likert bins, bin 0 collecting unparseable replies.
const LikertBins = 6

// Score is the classified outcome of one completion set.
type Score struct {
	Kind Kind `json:"kind"`

	// Boolean scores, one flag per sample.
	Yes []bool `json:"yes,omitempty"`
	No  []bool `json:"no,omitempty"`
	Unk []bool `json:"unk,omitempty"`

	// Likert fractions for bins 0..5, with the agreement appended when requested.
	Bins []float64 `json:"bins,omitempty"`

	// Answer is the trimmed first reply of a text check.
	Answer string `json:"answer,omitempty"`
}

// Fractions returns the yes, no and unknown shares of a boolean score.
func (s Score) Fractions() (yes, no, unk float64) {
	n := len(s.Yes)
	if n == 0 {
		return 0, 0, 0
	}
	return share(s.Yes), share(s.No), share(s.Unk)
}

// HasAgreement reports whether a Likert score carries the agreement value.
func (s Score) HasAgreement() bool {
	return s.Kind == KindLikert && len(s.Bins) == LikertBins+1
}

// Agreement returns the appended agreement value, if any.
func (s Score) Agreement() (float64, bool) {
	if !s.HasAgreement() {
		return 0, false
	}
	return s.Bins[LikertBins], true
}

func share(flags []bool) float64 {
	c := 0
	for _, f := range flags {
		if f {
			c++
		}
	}
	return float64(c) / float64(len(flags))
}

// Warning reports an ambiguous or unparseable sample.
type Warning struct {
	Sample  int
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("completion #%d: %s", w.Sample, w.Message)
}

var noPatterns = []string{
	"<decision>no",
	"would recommend not reposting",
	"would recommend not sharing",
	"would be advisable to not repost",
	"would be advisable to not share",
	" would not repost",
	" would not post",
	" would not share",
	" would not recommend reposting",
	" would not recommend sharing",
	" should not repost",
	" should not share",
	" would not feel comfortable sharing",
	" do not want to repost",
	" do not want to share",
	" would not want to repost",
	" would not want to share",
}

var yesPatterns = []string{
	"<decision>yes",
	" want to repost",
	" want to share",
	" would recommend doing so",
	" would decide to repost",
	" would decide to share",
	" would want to repost",
	" would want to share",
	" would feel inclined to repost",
	" would feel inclined to share",
	" would likely share",
	" would like to repost",
	" would like to share",
	" might consider sharing it",
	"it would be reasonable to share",
}

// Decision is the verdict on one boolean sample.
type Decision int

const (
	Unknown Decision = iota
	Yes
	No
)

// Decide counts yes and no markers in a completion. A class wins when it is
// the only one present or has strictly more matches; anything else is unknown.
func Decide(completion string) (Decision, string) {
	c := strings.ToLower(completion)

	yes := strings.Count(c, "<yes>")
	no := strings.Count(c, "<no>")
	for _, p := range yesPatterns {
		yes += strings.Count(c, p)
	}
	for _, p := range noPatterns {
		no += strings.Count(c, p)
	}

	switch {
	case yes == 0 && no == 0:
		return Unknown, "no clear reply to YES/NO"
	case no == 0, yes > no:
		return Yes, ""
	case yes == 0, no > yes:
		return No, ""
	default:
		return Unknown, fmt.Sprintf("%d YES and %d NO", yes, no)
	}
}

// Boolean classifies each completion as yes, no or unknown.
func Boolean(completions []string) (Score, []Warning) {
	n := len(completions)
	s := Score{
		Kind: KindBoolean,
		Yes:  make([]bool, n),
		No:   make([]bool, n),
		Unk:  make([]bool, n),
	}
	var warnings []Warning
	for i, c := range completions {
		d, msg := Decide(c)
		switch d {
		case Yes:
			s.Yes[i] = true
		case No:
			s.No[i] = true
		default:
			s.Unk[i] = true
			warnings = append(warnings, Warning{Sample: i, Message: msg})
		}
	}
	return s, warnings
}

var likertPattern = regexp.MustCompile(`(?i)[\(\[\{"']?\s*L\s*-?\s*([1-5])\s*[\)\]\}"']?`)

// LikertValue extracts the Likert label of a completion. The last label wins
// when several are present; 0 means none was found.
func LikertValue(completion string) (int, string) {
	matches := likertPattern.FindAllStringSubmatch(completion, -1)
	switch len(matches) {
	case 0:
		return 0, "no Likert-scale value found"
	case 1:
		v, _ := strconv.Atoi(matches[0][1])
		return v, ""
	default:
		v, _ := strconv.Atoi(matches[len(matches)-1][1])
		return v, fmt.Sprintf("%d Likert-scale values found, taking the last one", len(matches))
	}
}

// Likert bins the completions and converts the counts to fractions. When
// agreement is set the agreement value is appended as a seventh element.
func Likert(completions []string, agreement bool) (Score, []Warning) {
	var (
		counts   [LikertBins]int
		warnings []Warning
	)
	for i, c := range completions {
		v, msg := LikertValue(c)
		if msg != "" {
			warnings = append(warnings, Warning{Sample: i, Message: msg})
		}
		counts[v]++
	}

	n := len(completions)
	bins := make([]float64, LikertBins, LikertBins+1)
	if n > 0 {
		for i, c := range counts {
			bins[i] = float64(c) / float64(n)
		}
	}
	if agreement {
		bins = append(bins, Agreement(counts[:], n))
	}
	return Score{Kind: KindLikert, Bins: bins}, warnings
}

// Agreement is the single-subject form of Fleiss' observed agreement:
// (sum of squared bin counts - n) / (n(n-1)). A lone sample agrees with
// itself, so n == 1 yields 1; an empty set yields 0.
func Agreement(counts []int, n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n == 1:
		return 1
	}
	sum := 0
	for _, c := range counts {
		sum += c * c
	}
	return float64(sum-n) / float64(n*(n-1))
}

// Check keeps the first completion, trimmed, as the answer.
func Check(completions []string) (Score, []Warning) {
	if len(completions) == 0 {
		return Score{Kind: KindCheck}, []Warning{{Sample: 0, Message: "no completion returned"}}
	}
	return Score{Kind: KindCheck, Answer: strings.TrimSpace(completions[0])}, nil
}

// Classifier applies the configured mode to completion sets.
type Classifier struct {
	Likert    bool
	Agreement bool
}

// Classify scores one completion set.
func (c Classifier) Classify(completions []string) (Score, []Warning) {
	if c.Likert {
		return Likert(completions, c.Agreement)
	}
	return Boolean(completions)
}
