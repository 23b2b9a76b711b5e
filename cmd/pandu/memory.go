package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/adiwardana/pandu/pkg/rules"
)

// MemoryCmd groups inspection and management of persistent memory.
type MemoryCmd struct {
	Stats  MemoryStatsCmd  `cmd:"" help:"Show per-collection record counts."`
	Rules  MemoryRulesCmd  `cmd:"" help:"Manage deterministic rules."`
	Errors MemoryErrorsCmd `cmd:"" help:"Inspect the error memory."`
	Log    MemoryLogCmd    `cmd:"" help:"Show recent tool actions from the audit log."`
}

// MemoryStatsCmd prints collection sizes.
type MemoryStatsCmd struct{}

func (c *MemoryStatsCmd) Run(cli *CLI) error {
	rt, err := buildRuntime(cli, nil, "")
	if err != nil {
		return err
	}
	defer rt.cleanup()

	stats, err := rt.manager.Stats(context.Background())
	if err != nil {
		return err
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-14s %d\n", name, stats[name])
	}
	return nil
}

// MemoryRulesCmd manages the rule engine.
type MemoryRulesCmd struct {
	List   RulesListCmd   `cmd:"" help:"List all rules."`
	Add    RulesAddCmd    `cmd:"" help:"Add a rule."`
	Remove RulesRemoveCmd `cmd:"" help:"Remove a rule by id."`
	Export RulesExportCmd `cmd:"" help:"Export rules as JSON to stdout."`
	Import RulesImportCmd `cmd:"" help:"Import rules from a JSON file."`
}

type RulesListCmd struct{}

func (c *RulesListCmd) Run(cli *CLI) error {
	rt, err := buildRuntime(cli, nil, "")
	if err != nil {
		return err
	}
	defer rt.cleanup()

	all := rt.engine.List()
	if len(all) == 0 {
		fmt.Println("No rules stored.")
		return nil
	}
	for _, r := range all {
		fmt.Printf("%s  [%s, priority %d]  %q -> %q\n",
			r.ID, r.Kind, r.Priority, r.Trigger, r.Response)
	}
	return nil
}

type RulesAddCmd struct {
	Trigger  string `arg:"" help:"Trigger text or pattern."`
	Response string `arg:"" help:"Response to produce."`
	Kind     string `help:"Trigger kind: exact, contains or regex." default:"contains" enum:"exact,contains,regex"`
	Priority int    `help:"Higher priority rules match first." default:"0"`
}

func (c *RulesAddCmd) Run(cli *CLI) error {
	rt, err := buildRuntime(cli, nil, "")
	if err != nil {
		return err
	}
	defer rt.cleanup()

	id, err := rt.engine.Add(c.Trigger, rules.TriggerKind(c.Kind), c.Response, c.Priority)
	if err != nil {
		return err
	}
	fmt.Printf("added rule %s\n", id)
	return nil
}

type RulesRemoveCmd struct {
	ID string `arg:"" help:"Rule id to remove."`
}

func (c *RulesRemoveCmd) Run(cli *CLI) error {
	rt, err := buildRuntime(cli, nil, "")
	if err != nil {
		return err
	}
	defer rt.cleanup()

	if !rt.engine.Remove(c.ID) {
		return fmt.Errorf("no rule with id %s", c.ID)
	}
	fmt.Println("rule removed")
	return nil
}

type RulesExportCmd struct{}

func (c *RulesExportCmd) Run(cli *CLI) error {
	rt, err := buildRuntime(cli, nil, "")
	if err != nil {
		return err
	}
	defer rt.cleanup()
	return rt.engine.Export(os.Stdout)
}

type RulesImportCmd struct {
	File string `arg:"" help:"JSON file produced by export." type:"path"`
}

func (c *RulesImportCmd) Run(cli *CLI) error {
	rt, err := buildRuntime(cli, nil, "")
	if err != nil {
		return err
	}
	defer rt.cleanup()

	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := rt.engine.Import(f)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d rule(s)\n", n)
	return nil
}

// MemoryErrorsCmd inspects recorded failures.
type MemoryErrorsCmd struct {
	Days int    `help:"Analysis window in days." default:"7"`
	Tool string `help:"Restrict the report to one tool."`
}

func (c *MemoryErrorsCmd) Run(cli *CLI) error {
	rt, err := buildRuntime(cli, nil, "")
	if err != nil {
		return err
	}
	defer rt.cleanup()

	fmt.Println(rt.errors.Summary())

	report := rt.errors.Analyze(c.Days, c.Tool)
	if report.Total == 0 {
		return nil
	}

	fmt.Printf("\nLast %d day(s): %d error(s)\n", c.Days, report.Total)
	if len(report.TopErrorTypes) > 0 {
		fmt.Printf("Top types: %s\n", strings.Join(report.TopErrorTypes, ", "))
	}
	for tool, n := range report.ByTool {
		fmt.Printf("  %-12s %d\n", tool, n)
	}
	if len(report.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, rec := range report.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}
	return nil
}

// MemoryLogCmd shows the tail of the audit log.
type MemoryLogCmd struct {
	N int `help:"Number of entries to show." default:"20"`
}

func (c *MemoryLogCmd) Run(cli *CLI) error {
	rt, err := buildRuntime(cli, nil, "")
	if err != nil {
		return err
	}
	defer rt.cleanup()

	entries := rt.audit.Tail(c.N)
	if len(entries) == 0 {
		fmt.Println("Audit log is empty or disabled.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  [%s]  %s\n    %s\n",
			e.TS.Format("2006-01-02 15:04:05"), e.Status, e.ToolAction, e.Result)
	}
	return nil
}
