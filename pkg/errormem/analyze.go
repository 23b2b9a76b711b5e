package errormem

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// PatternReport aggregates recorded failures over a time window.
type PatternReport struct {
	Total            int
	ByTool           map[string]int
	ByOperation      map[string]int
	TopErrorTypes    []string
	ByExtension      map[string]int
	ProblematicPaths map[string]int
	Recommendations  []string
}

// Preflight is advisory context computed before a tool call from
// similar past errors.
type Preflight struct {
	Warnings               []string
	RecommendedValidations []string
	Confidence             float64
}

// Analyze aggregates events inside the window. An empty tool filter
// includes everything.
func (s *Store) Analyze(windowDays int, tool string) *PatternReport {
	cutoff := s.now().AddDate(0, 0, -windowDays)

	report := &PatternReport{
		ByTool:           make(map[string]int),
		ByOperation:      make(map[string]int),
		ByExtension:      make(map[string]int),
		ProblematicPaths: make(map[string]int),
	}

	errorTypes := make(map[string]int)
	for _, e := range s.Events() {
		if e.TS.Before(cutoff) {
			continue
		}
		if tool != "" && e.Tool != tool {
			continue
		}
		report.Total++
		report.ByTool[e.Tool]++
		report.ByOperation[e.Operation]++
		errorTypes[errorType(e.Message)]++

		if ext, ok := e.Meta["extension"].(string); ok && ext != "" {
			report.ByExtension[ext]++
		}
		if path, ok := e.Meta["path"].(string); ok && path != "" {
			report.ProblematicPaths[path]++
		}
	}

	report.TopErrorTypes = topKeys(errorTypes, 5)
	report.Recommendations = recommendations(report)
	return report
}

// PreventionStrategy inspects past failures of a (tool, operation)
// pair before it runs again. Confidence grows with the number of
// matching past errors, capped at 1.
func (s *Store) PreventionStrategy(ctx context.Context, tool, operation string, args map[string]any) Preflight {
	var matching []Event
	path, _ := args["path"].(string)

	for _, e := range s.Events() {
		if e.Tool != tool {
			continue
		}
		if operation != "" && e.Operation != "" && e.Operation != operation {
			continue
		}
		matching = append(matching, e)
	}

	pf := Preflight{}
	if len(matching) == 0 {
		return pf
	}
	pf.Confidence = float64(len(matching)) / 10
	if pf.Confidence > 1 {
		pf.Confidence = 1
	}

	seen := make(map[string]bool)
	for _, e := range matching {
		if p, ok := e.Meta["path"].(string); ok && p != "" && p == path {
			warning := fmt.Sprintf("%s previously failed on %s: %s", tool, p, e.Message)
			if !seen[warning] {
				pf.Warnings = append(pf.Warnings, warning)
				seen[warning] = true
			}
		}
		rem := Remediate(e)
		if rem.Action == ActionValidate || rem.Action == ActionCreate {
			if !seen[rem.Suggestion] {
				pf.RecommendedValidations = append(pf.RecommendedValidations, rem.Suggestion)
				seen[rem.Suggestion] = true
			}
		}
	}

	if len(pf.Warnings) == 0 {
		pf.Warnings = append(pf.Warnings,
			fmt.Sprintf("%s has failed %d time(s) before; double-check the arguments", tool, len(matching)))
	}
	return pf
}

// CleanupOld drops events older than maxAgeDays from the JSON log.
// The mirrored vector records are pruned by the housekeeper through
// the vector store's own cleanup.
func (s *Store) CleanupOld(maxAgeDays int) (int, error) {
	cutoff := s.now().AddDate(0, 0, -maxAgeDays)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	removed := 0
	for _, e := range s.events {
		if e.TS.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, s.persist()
}

// errorType collapses a message to a coarse type key for counting.
func errorType(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "not found") || strings.Contains(lower, "no such file"):
		return "not_found"
	case strings.Contains(lower, "permission"):
		return "permission"
	case strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout"):
		return "timeout"
	case strings.Contains(lower, "too large"):
		return "size_limit"
	case strings.Contains(lower, "whitelist") || strings.Contains(lower, "blocked") ||
		strings.Contains(lower, "escapes"):
		return "safety"
	case strings.Contains(lower, "invalid"):
		return "validation"
	default:
		return "other"
	}
}

func topKeys(counts map[string]int, n int) []string {
	type kv struct {
		key   string
		count int
	}
	pairs := make([]kv, 0, len(counts))
	for k, v := range counts {
		pairs = append(pairs, kv{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].key < pairs[j].key
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.key
	}
	return keys
}

func recommendations(report *PatternReport) []string {
	var recs []string
	for _, t := range report.TopErrorTypes {
		switch t {
		case "not_found":
			recs = append(recs, "Verify paths exist before reading or executing.")
		case "permission":
			recs = append(recs, "Review file ownership and the blocked_paths configuration.")
		case "timeout":
			recs = append(recs, "Increase command_timeout_seconds for long operations.")
		case "size_limit":
			recs = append(recs, "Use line ranges for large files or raise max_file_size_mb.")
		case "safety":
			recs = append(recs, "Keep targets inside working_directory and the command whitelist.")
		case "validation":
			recs = append(recs, "Check tool argument types against the schema before calling.")
		}
	}

	for path, n := range report.ProblematicPaths {
		if n >= 3 {
			recs = append(recs, fmt.Sprintf("Path %q failed %d times; inspect it manually.", path, n))
		}
	}
	return recs
}
