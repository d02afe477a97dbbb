// Command ollmd wires up the runtime services around a stub provider that
// stands in for a local Ollama model, and runs one turn with the prompt
// given by -prompt.
//
// Usage:
//
//	go run ./cmd/ollmd -prompt "What is 2+2?"
//	go run ./cmd/ollmd -model llama3.1:8b -session-dir ./sessions -prompt "hi"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jg-phare/ollm/internal/envconfig"
	"github.com/jg-phare/ollm/pkg/compression"
	"github.com/jg-phare/ollm/pkg/contextmgr"
	"github.com/jg-phare/ollm/pkg/environ"
	"github.com/jg-phare/ollm/pkg/loopdetect"
	"github.com/jg-phare/ollm/pkg/orchestrator"
	"github.com/jg-phare/ollm/pkg/provider"
	"github.com/jg-phare/ollm/pkg/session"
)

func main() {
	model := flag.String("model", "llama3.1:8b", "Model name")
	prompt := flag.String("prompt", "What is 2 + 2? Reply in one short sentence.", "Prompt to send")
	sessionDir := flag.String("session-dir", "", "Session data directory (default ~/.ollm/sessions/<sanitized-cwd>)")
	resume := flag.String("resume", "", "Resume an existing session id instead of creating one")
	configFile := flag.String("config", "ollm.yaml", "Path to a YAML config file (optional)")
	maxTurns := flag.Int("max-turns", 50, "Loop detector turn limit")
	flag.Parse()

	fileCfg := envconfig.LoadFile(*configFile)
	env := envconfig.Load("ollm")
	effectiveModel := *model
	if fileCfg.Model != "" {
		effectiveModel = fileCfg.Model
	}
	if env.Model != "" {
		effectiveModel = env.Model
	}

	dataDir := *sessionDir
	if dataDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			dataDir = session.ProjectDataDir(cwd)
		} else {
			dataDir = session.DefaultDataDir()
		}
	}
	store := session.NewStore(dataDir)

	sessionID := *resume
	if sessionID == "" {
		var err error
		sessionID, err = store.CreateSession(effectiveModel, "ollama")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating session: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("Session: %s\nModel:   %s\n", sessionID, effectiveModel)
	fmt.Println(strings.Repeat("-", 60))

	targetTokens := fileCfg.Compression.TargetTokens
	if targetTokens == 0 {
		targetTokens = 4000
	}
	preserveTokens := fileCfg.Compression.PreserveRecentTokens
	if preserveTokens == 0 {
		preserveTokens = 1000
	}
	threshold := fileCfg.Compression.Threshold
	if threshold == 0 {
		threshold = 0.8
	}

	o := orchestrator.New(orchestrator.Config{
		Store:     store,
		Detector:  loopdetect.New(loopdetect.Config{Enabled: true, MaxTurns: *maxTurns}),
		Context:   contextmgr.New(),
		Provider:  newOllamaProvider(),
		Sanitizer: environ.New(),
		Model:     effectiveModel,

		CompressionOptions: compression.Options{
			Strategy:             compression.StrategyHybrid,
			TargetTokens:         targetTokens,
			PreserveRecentTokens: preserveTokens,
		},
		TokenLimit:        8192,
		CompressThreshold: threshold,

		ShellTimeout:     120 * time.Second,
		ShellIdleTimeout: 30 * time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := o.RunTurn(ctx, sessionID, *prompt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if result.LoopDetected != nil {
		fmt.Printf("[loop detected] %s: %s\n", result.LoopDetected.Type, result.LoopDetected.Details)
		return
	}

	fmt.Println(result.AssistantText)
	for _, tc := range result.ToolCalls {
		fmt.Printf("[tool] %s -> %s\n", tc.Name, truncate(tc.Result.LLMContent, 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// newOllamaProvider returns a Provider stub that echoes a placeholder
// response; a real build points this at the local Ollama HTTP API.
func newOllamaProvider() provider.Provider {
	return stubProvider{}
}

type stubProvider struct{}

func (stubProvider) ChatStream(ctx context.Context, req provider.Request) (<-chan provider.Event, error) {
	ch := make(chan provider.Event, 2)
	go func() {
		defer close(ch)
		last := ""
		if len(req.Messages) > 0 {
			last = req.Messages[len(req.Messages)-1].Text()
		}
		select {
		case ch <- provider.Event{Type: provider.EventText, Text: fmt.Sprintf("(stub reply to %q via %s)", last, req.Model)}:
		case <-ctx.Done():
			return
		}
		select {
		case ch <- provider.Event{Type: provider.EventFinish, FinishReason: "stop"}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
