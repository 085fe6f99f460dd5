// Package agent implements the orchestration core of an interactive
// tool-using assistant.
//
// A Loop owns one Conversation for its lifetime and turns each user message
// into a bounded sequence of completion calls and tool executions: it calls
// the completion client, dispatches any tool calls the model requested
// (strictly in the order received, gated by operator approval for
// side-effecting tools), appends the results, and repeats until the model
// produces a final text answer or the iteration ceiling is reached.
//
// The package is organized around these concepts:
//
//   - Loop: the per-session state machine driving rounds of
//     [complete -> dispatch tools -> append results].
//   - Conversation: the append-only transcript, seeded with exactly one
//     system message.
//   - Registry: name -> tool capability lookup; tool failures never escape
//     its Execute boundary.
//   - Gate: the synchronous human approval check for side-effecting tools.
//   - Profile / ProfileTable: immutable agent configuration selected once
//     per session.
//   - EventEmitter: typed event stream decoupling accounting from
//     presentation.
//
// # Quick Start
//
//	client := llmclient.NewClient(
//	    llmclient.WithProvider("openai", llmclient.NewOpenAIAdapter(baseURL, key)),
//	)
//	reg := agent.NewRegistry()
//	tools.RegisterFileTools(reg, ".", nil)
//	profile, _ := table.Get("default")
//	loop := agent.NewLoop(client, reg, agent.NewConsoleGate(os.Stdin, os.Stdout), profile, nil)
//
//	answer, err := loop.Chat(ctx, "what is the capital of France")
package agent
