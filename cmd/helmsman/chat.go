package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seaborne/helmsman/agent"
	"github.com/seaborne/helmsman/config"
	"github.com/seaborne/helmsman/llmclient"
	"github.com/seaborne/helmsman/tools"
)

func newChatCmd() *cobra.Command {
	var agentName string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Example: `  helmsman chat
  helmsman chat --agent researcher
  HELMSMAN_MODEL=gpt-4o helmsman chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runChat(cfg, agentName)
		},
	}

	cmd.Flags().StringVar(&agentName, "agent", "", "Agent profile to use (default from config)")

	return cmd
}

func runChat(cfg config.Config, agentName string) error {
	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if agentName == "" {
		agentName = cfg.DefaultAgent
	}
	profile, ok := cfg.Profiles().Get(agentName)
	if !ok {
		return fmt.Errorf("unknown agent %q, run 'helmsman profiles' to list them", agentName)
	}

	client, err := buildClient(cfg, profile, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	store, err := tools.OpenMemoryStore(filepath.Join(cfg.DataDir, "memory.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	registry := agent.NewRegistry()
	tools.RegisterFileTools(registry, workDir, cfg.RestrictedPaths)
	tools.RegisterCalculator(registry)
	tools.RegisterMemoryTools(registry, store)
	if cfg.SearchURL != "" {
		tools.RegisterWebSearch(registry, cfg.SearchURL, nil)
	}

	// Seed the system prompt with any memories from earlier sessions.
	recall, err := store.RecallAll()
	if err != nil {
		return err
	}
	profile.BasePrompt = profile.SystemPrompt(recall, "")

	// The REPL and the approval gate share one reader so neither swallows
	// input buffered for the other.
	stdin := bufio.NewReader(os.Stdin)
	gate := agent.NewConsoleGate(stdin, os.Stdout)

	loop := agent.NewLoop(client, registry, gate, profile, &agent.LoopConfig{
		MaxIterations: cfg.MaxIterations,
		Temperature:   cfg.Temperature,
		Logger:        logger,
	})
	defer loop.Close()

	done := make(chan struct{})
	go renderEvents(loop.Events(), done)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	banner := color.New(color.FgCyan, color.Bold)
	banner.Printf("helmsman session %s (agent %s, model %s)\n", loop.ID()[:8], profile.Name, profile.Model)
	fmt.Println(`Type a message, or "exit" to quit.`)

	prompt := color.New(color.FgGreen, color.Bold)
	answer := color.New(color.FgWhite)
	faint := color.New(color.Faint)

	for {
		prompt.Print("you> ")
		line, err := stdin.ReadString('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		start := time.Now()
		reply, err := loop.Chat(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			color.New(color.FgRed).Printf("error: %v\n", err)
			continue
		}

		fmt.Println()
		answer.Println(reply)
		usage := loop.Usage()
		faint.Printf("[%d round(s), %d prompt + %d completion tokens, %.0f%% cached, %s]\n\n",
			usage.Rounds, usage.PromptTokens, usage.CompletionTokens,
			usage.CacheHitRatio()*100, time.Since(start).Round(time.Millisecond))
	}

	loop.Close()
	<-done
	fmt.Println("bye")
	return nil
}

// buildClient wires the provider adapters the configured profiles can route
// to. The OpenAI-compatible adapter is always present; any other provider
// name goes through gollm.
func buildClient(cfg config.Config, profile agent.Profile, logger *zap.Logger) (*llmclient.Client, error) {
	client := llmclient.NewClient(
		llmclient.WithProvider("openai", llmclient.NewOpenAIAdapter(cfg.BaseURL, cfg.APIKey)),
		llmclient.WithDefaultProvider("openai"),
		llmclient.WithMiddleware(llmclient.LoggingMiddleware(logger)),
	)

	if profile.Provider != "" && profile.Provider != "openai" {
		adapter, err := llmclient.NewGollmAdapter(profile.Provider, profile.Model, cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("configure provider %q: %w", profile.Provider, err)
		}
		client.RegisterProvider(profile.Provider, adapter)
	}
	return client, nil
}

// renderEvents prints tool activity as the loop emits it, so the operator
// can see what the agent is doing between rounds.
func renderEvents(events <-chan agent.Event, done chan<- struct{}) {
	defer close(done)
	faint := color.New(color.Faint)
	red := color.New(color.FgRed)

	for evt := range events {
		switch evt.Kind {
		case agent.EventToolStart:
			faint.Printf("  ... running %v\n", evt.Data["tool"])
		case agent.EventApprovalDenied:
			faint.Printf("  ... %v denied on %v\n", evt.Data["tool"], evt.Data["target"])
		case agent.EventExhausted:
			red.Printf("  ... stopped after %v rounds without a final answer\n", evt.Data["rounds"])
		}
	}
}
