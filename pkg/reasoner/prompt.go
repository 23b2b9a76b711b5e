package reasoner

import (
	"fmt"
	"strings"
)

// buildSystemPrompt renders the base instructions plus the retrieved
// memory block. The memory block is part of message zero so it can
// never be pruned away.
func buildSystemPrompt(workDir string, toolNames []string, memoryBlock string) string {
	var b strings.Builder

	b.WriteString("You are Pandu, an autonomous assistant that completes tasks by calling tools.\n\n")
	fmt.Fprintf(&b, "Working directory: %s\n", workDir)
	if len(toolNames) > 0 {
		fmt.Fprintf(&b, "Available tools: %s\n", strings.Join(toolNames, ", "))
	}
	b.WriteString("\nGuidelines:\n")
	b.WriteString("- Use tools to act; do not claim to have done something without a tool call.\n")
	b.WriteString("- A tool observation starting with Error, Blocked or Timeout means the call did not take effect. " +
		"Adjust your approach instead of repeating the same call.\n")
	b.WriteString("- When an action is blocked because the user declined, respect that and move on.\n")
	b.WriteString("- When the task is complete, reply with a plain text summary and no tool calls.\n")
	b.WriteString("- Answer in the language the user used.\n")

	if memoryBlock != "" {
		b.WriteString("\n")
		b.WriteString(memoryBlock)
	}
	return b.String()
}

// recoveryMessage is the corrective user turn sent after the provider
// rejects a malformed tool invocation.
func recoveryMessage(failedGeneration string) string {
	var b strings.Builder
	b.WriteString("Your previous response was not a valid tool invocation.")
	if failedGeneration != "" {
		b.WriteString(" You produced:\n\n")
		b.WriteString(truncateForPrompt(failedGeneration, 600))
		b.WriteString("\n")
	}
	b.WriteString("\nCall exactly one of the available tools with JSON arguments that match its schema.")
	return b.String()
}

func truncateForPrompt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
