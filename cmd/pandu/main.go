// Command pandu is the CLI for the Pandu task agent.
//
// Usage:
//
//	pandu run "summarize README.md" --config pandu.yaml
//	pandu chat
//	pandu memory stats
//	pandu memory rules list
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/adiwardana/pandu/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Run     RunCmd     `cmd:"" help:"Execute a single task and exit."`
	Chat    ChatCmd    `cmd:"" help:"Start an interactive session."`
	Memory  MemoryCmd  `cmd:"" help:"Inspect and manage persistent memory."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:""`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:""`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("pandu version %s\n", version)
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("pandu"),
		kong.Description("An autonomous task agent with tools, rules and persistent memory."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(cli); err != nil {
		logger.Get().Error("command failed", "error", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
