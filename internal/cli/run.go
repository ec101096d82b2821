package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harun/nalar/internal/config"
	"github.com/harun/nalar/internal/logger"
	"github.com/harun/nalar/pkg/agent"
	"github.com/harun/nalar/pkg/events"
	"github.com/harun/nalar/pkg/eventstore"
	"github.com/harun/nalar/pkg/fanout"
	"github.com/harun/nalar/pkg/history"
	"github.com/harun/nalar/pkg/llm"
	"github.com/harun/nalar/pkg/tools"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an interactive agent session",
	Long: `Run an interactive agent session on the console.
Each line you enter becomes an instruction; the agent works until it
returns control, you interrupt it with Ctrl-C, or it hits the turn limit.
Follow-up lines resume the same dialog. Type "exit" to quit.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()
	zlog := log.GetZerolog()

	var client llm.Client
	switch cfg.Provider {
	case "anthropic":
		client = llm.NewAnthropicClient(cfg.APIKey, cfg.Model)
	case "openai":
		client = llm.NewOpenAIClient(cfg.APIKey, cfg.Model)
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	registry, err := tools.NewRegistry(zlog, tools.NewReturnControlTool())
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	queue := events.NewQueue()
	ledger := history.New(cfg.Agent.ContextTokenBudget, zlog)

	ag, err := agent.New(agent.Config{
		Client:          client,
		Registry:        registry,
		Ledger:          ledger,
		Queue:           queue,
		Logger:          zlog,
		SystemPrompt:    cfg.Agent.SystemPrompt,
		MaxTurns:        cfg.Agent.MaxTurns,
		MaxOutputTokens: cfg.Agent.MaxOutputTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to build agent: %w", err)
	}

	store, err := eventstore.New(cfg.Events.DBPath, zlog)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer store.Close()

	consumer, err := fanout.New(fanout.Config{
		Queue:     queue,
		Sink:      store,
		SessionID: ag.SessionID(),
		Logger:    zlog,
	})
	if err != nil {
		return fmt.Errorf("failed to build event consumer: %w", err)
	}
	consumer.Start(context.Background())

	// Ctrl-C interrupts the running agent instead of killing the process.
	// The run winds down at its next checkpoint.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			ag.Cancel()
		}
	}()

	cmd.Printf("Session %s (provider %s, model %s)\n", ag.SessionID(), cfg.Provider, cfg.Model)

	scanner := bufio.NewScanner(os.Stdin)
	resume := false
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		result, err := ag.Run(context.Background(), agent.RunParams{
			Instruction: line,
			Resume:      resume,
		})
		if err != nil {
			zlog.Error().Err(err).Msg("Agent run failed")
			cmd.Printf("error: %v\n", err)
			continue
		}
		resume = true
		cmd.Println(result)
	}

	queue.Close()
	consumer.Wait()
	return scanner.Err()
}
