package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// RunCmd executes one task and prints the final answer.
type RunCmd struct {
	Task        string `arg:"" help:"The task to perform."`
	Yes         bool   `short:"y" help:"Approve all tool calls without asking."`
	MetricsAddr string `help:"Serve Prometheus metrics on this address (e.g. :9090)." placeholder:"ADDR"`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	override := ""
	if c.Yes {
		override = "YES"
	}
	rt, err := buildRuntime(cli, terminalAsker(), override)
	if err != nil {
		return err
	}
	defer rt.cleanup()
	serveMetrics(c.MetricsAddr)

	result, err := rt.session.Submit(ctx, c.Task)
	if err != nil {
		return err
	}
	fmt.Println(result.FinalText)
	return nil
}

// ChatCmd runs an interactive read-eval loop. Each input line is a
// task; the session serializes them.
type ChatCmd struct {
	MetricsAddr string `help:"Serve Prometheus metrics on this address (e.g. :9090)." placeholder:"ADDR"`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := buildRuntime(cli, terminalAsker(), "")
	if err != nil {
		return err
	}
	defer rt.cleanup()
	serveMetrics(c.MetricsAddr)

	fmt.Println("pandu interactive session. Type a task, or 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit", "keluar":
			return nil
		}

		result, err := rt.session.Submit(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(result.FinalText)
	}
	return scanner.Err()
}

// terminalAsker prompts on stderr and reads a y/n answer from stdin.
func terminalAsker() askerFunc {
	reader := bufio.NewReader(os.Stdin)
	return func(ctx context.Context, prompt string) (bool, error) {
		fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)

		type answer struct {
			ok  bool
			err error
		}
		ch := make(chan answer, 1)
		go func() {
			line, err := reader.ReadString('\n')
			if err != nil {
				ch <- answer{err: err}
				return
			}
			resp := strings.ToLower(strings.TrimSpace(line))
			ch <- answer{ok: resp == "y" || resp == "yes" || resp == "ya"}
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			return false, ctx.Err()
		case a := <-ch:
			return a.ok, a.err
		}
	}
}

type askerFunc func(ctx context.Context, prompt string) (bool, error)

func (f askerFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
