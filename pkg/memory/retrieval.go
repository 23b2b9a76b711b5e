package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/adiwardana/pandu/pkg/rules"
	"github.com/adiwardana/pandu/pkg/vector"
)

// Bundle is the typed retrieval result injected into the system
// prompt. Rules are always complete; the other sections hold the
// top-k semantic hits for the task.
type Bundle struct {
	Rules       []rules.Rule
	Facts       []vector.Result
	Experiences []vector.Result
	Lessons     []vector.Result
	Strategies  []vector.Result
}

// Retriever assembles bundles. Collection queries run concurrently; a
// failing collection yields an empty section, never a failed bundle.
type Retriever struct {
	store vector.Store
	rules *rules.Engine
	topK  int
}

func NewRetriever(store vector.Store, engine *rules.Engine, topK int) *Retriever {
	return &Retriever{store: store, rules: engine, topK: topK}
}

// ForTask builds the bundle for a task string.
func (r *Retriever) ForTask(ctx context.Context, task string) *Bundle {
	bundle := &Bundle{Rules: r.rules.List()}

	sections := []struct {
		collection string
		dest       *[]vector.Result
	}{
		{CollFacts, &bundle.Facts},
		{CollExperiences, &bundle.Experiences},
		{CollLessons, &bundle.Lessons},
		{CollStrategies, &bundle.Strategies},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, section := range sections {
		section := section
		g.Go(func() error {
			results, err := r.store.Query(gctx, section.collection, task, r.topK)
			if err != nil {
				slog.Warn("retrieval query failed, section left empty",
					"collection", section.collection, "error", err)
				return nil
			}
			*section.dest = results
			return nil
		})
	}
	_ = g.Wait()

	return bundle
}

// Empty reports whether the bundle has nothing to inject.
func (b *Bundle) Empty() bool {
	return len(b.Rules) == 0 && len(b.Facts) == 0 && len(b.Experiences) == 0 &&
		len(b.Lessons) == 0 && len(b.Strategies) == 0
}

// Render produces the labeled prompt block. Empty sections are
// omitted; an empty bundle renders as "".
func (b *Bundle) Render() string {
	if b.Empty() {
		return ""
	}

	var sb strings.Builder

	if len(b.Rules) > 0 {
		sb.WriteString("ACTIVE RULES:\n")
		for _, r := range b.Rules {
			fmt.Fprintf(&sb, "- when input %s %q respond: %s\n", r.Kind, r.Trigger, r.Response)
		}
	}
	writeSection(&sb, "KNOWN FACTS:", b.Facts)
	writeSection(&sb, "PAST EXPERIENCES:", b.Experiences)
	writeSection(&sb, "LESSONS:", b.Lessons)
	writeSection(&sb, "STRATEGIES:", b.Strategies)

	return strings.TrimRight(sb.String(), "\n")
}

func writeSection(sb *strings.Builder, label string, results []vector.Result) {
	if len(results) == 0 {
		return
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(label)
	sb.WriteString("\n")
	for _, r := range results {
		sb.WriteString("- ")
		sb.WriteString(r.Document)
		sb.WriteString("\n")
	}
}
