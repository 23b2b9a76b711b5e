// Package memory classifies completed interactions, stores them in
// the typed collections and retrieves context for new tasks.
package memory

import (
	"regexp"
	"strings"
)

// Class is the outcome of classifying one completed interaction.
type Class int

const (
	ClassUseless Class = iota
	ClassRule
	ClassFact
	ClassExperience
)

func (c Class) String() string {
	switch c {
	case ClassRule:
		return "rule"
	case ClassFact:
		return "fact"
	case ClassExperience:
		return "experience"
	default:
		return "useless"
	}
}

// minMeaningfulLen is the shortest input that can carry information
// worth storing.
const minMeaningfulLen = 3

var (
	uselessPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*(halo|hai|hello|hi|hey|hola)\s*[.!?]*\s*$`),
		regexp.MustCompile(`(?i)^\s*(selamat\s+(pagi|siang|sore|malam)|good\s+(morning|afternoon|evening|night))\s*[.!?]*\s*$`),
		regexp.MustCompile(`(?i)^\s*(ok|oke|okay|sip|mantap|ya|yes|no|tidak|nggak|gak)\s*[.!?]*\s*$`),
		regexp.MustCompile(`(?i)^\s*(thanks|thank\s+you|makasih|terima\s+kasih|thx)\s*[.!?]*\s*$`),
		regexp.MustCompile(`(?i)^\s*(bye|dadah|sampai\s+jumpa|goodbye)\s*[.!?]*\s*$`),
	}

	// "jika X maka Y", "kalau X maka Y", "if X then Y"
	ruleIfThen = regexp.MustCompile(`(?i)^\s*(?:jika|kalau|if)\s+(.+?)\s*[,]?\s+(?:maka|then)\s*[,:]?\s*(.+?)\s*$`)
	// "selalu jawab Y jika X", "always respond Y when X"
	ruleAlways = regexp.MustCompile(`(?i)^\s*(?:selalu|always)\s+(?:jawab|balas|respond(?:\s+with)?|reply(?:\s+with)?|say)?\s*(.+?)\s+(?:jika|kalau|when|whenever)\s+(.+?)\s*$`)

	factName       = regexp.MustCompile(`(?i)\b(?:nama\s+saya|namaku|nama\s+aku|my\s+name\s+is|panggil\s+saya|call\s+me)\s+(.+?)\s*[.!]?\s*$`)
	factPreference = regexp.MustCompile(`(?i)\b(?:saya\s+suka|aku\s+suka|saya\s+lebih\s+suka|i\s+like|i\s+prefer|i\s+love)\s+(.+?)\s*[.!]?\s*$`)

	codeBlock = regexp.MustCompile("```")
)

// Filter is the deterministic classifier. It never consults the LLM;
// classification uses surface patterns and counts only.
type Filter struct{}

func NewFilter() *Filter {
	return &Filter{}
}

// Classify decides what, if anything, an interaction should persist
// as. actionsCount is the number of tool calls the task executed.
func (f *Filter) Classify(userInput, assistantText string, success bool, actionsCount int) Class {
	trimmed := strings.TrimSpace(userInput)
	if len(trimmed) < minMeaningfulLen {
		return ClassUseless
	}
	for _, p := range uselessPatterns {
		if p.MatchString(trimmed) {
			return ClassUseless
		}
	}

	if _, _, ok := f.ExtractRule(trimmed); ok {
		return ClassRule
	}
	if _, _, ok := f.ExtractFact(trimmed); ok {
		return ClassFact
	}

	if actionsCount >= 1 || !success || codeBlock.MatchString(assistantText) {
		return ClassExperience
	}
	return ClassUseless
}

// ExtractRule pulls (trigger, response) from a rule-shaped utterance.
func (f *Filter) ExtractRule(input string) (trigger, response string, ok bool) {
	if m := ruleIfThen.FindStringSubmatch(input); m != nil {
		return cleanFragment(m[1]), cleanFragment(m[2]), true
	}
	if m := ruleAlways.FindStringSubmatch(input); m != nil {
		// "always <response> when <trigger>" reverses the groups.
		return cleanFragment(m[2]), cleanFragment(m[1]), true
	}
	return "", "", false
}

// ExtractFact pulls (category, value) from a fact-shaped utterance.
func (f *Filter) ExtractFact(input string) (category, value string, ok bool) {
	if m := factName.FindStringSubmatch(input); m != nil {
		return "name", cleanFragment(m[1]), true
	}
	if m := factPreference.FindStringSubmatch(input); m != nil {
		return "preference", cleanFragment(m[1]), true
	}
	return "", "", false
}

func cleanFragment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimRight(s, ".!?,")
}
