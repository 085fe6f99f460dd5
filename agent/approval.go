package agent

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Gate is the synchronous policy check invoked before executing an
// approval-gated tool. Approve blocks the whole loop until a decision is
// obtained; refusal is the default outcome.
type Gate interface {
	Approve(toolName string, args map[string]any) bool
}

// approvalPreviewLen is the fixed prefix of payload content shown in the
// approval prompt.
const approvalPreviewLen = 200

// affirmativeToken is the only input that grants approval.
const affirmativeToken = "y"

// ConsoleGate asks the operator on the interactive surface. Anything other
// than the exact affirmative token, including a read failure, refuses.
type ConsoleGate struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsoleGate creates a ConsoleGate over the given reader/writer pair,
// typically stdin/stdout.
func NewConsoleGate(in io.Reader, out io.Writer) *ConsoleGate {
	return &ConsoleGate{in: bufio.NewReader(in), out: out}
}

// Approve presents the requested action and blocks for the decision.
func (g *ConsoleGate) Approve(toolName string, args map[string]any) bool {
	header := color.New(color.FgYellow, color.Bold)
	fmt.Fprintln(g.out)
	header.Fprintf(g.out, "The agent wants to run %s:\n", toolName)

	for _, key := range sortedKeys(args) {
		fmt.Fprintf(g.out, "  %s: %s\n", key, previewValue(args[key]))
	}
	fmt.Fprintf(g.out, "Allow? [%s/N]: ", affirmativeToken)

	line, err := g.in.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(strings.ToLower(line)) == affirmativeToken
}

// previewValue renders one argument value bounded to the preview length,
// with an explicit marker when truncated.
func previewValue(v any) string {
	s := fmt.Sprintf("%v", v)
	s = strings.ReplaceAll(s, "\n", "\\n")
	if len(s) > approvalPreviewLen {
		return s[:approvalPreviewLen] + fmt.Sprintf("... [%d more characters]", len(s)-approvalPreviewLen)
	}
	return s
}

func sortedKeys(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StaticGate always answers with a fixed decision. Useful for
// non-interactive runs and tests.
type StaticGate bool

// Approve returns the fixed decision.
func (g StaticGate) Approve(string, map[string]any) bool {
	return bool(g)
}
