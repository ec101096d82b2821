package cli

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harun/nalar/internal/config"
	"github.com/harun/nalar/internal/logger"
	"github.com/harun/nalar/pkg/eventstore"
)

var replayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Replay the persisted events of a session",
	Long: `Replay every event recorded for a session, in the order it was
published. The session id is printed when "nalar run" starts.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	sessionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", args[0], err)
	}

	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	store, err := eventstore.New(cfg.Events.DBPath, log.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer store.Close()

	replayed, err := store.ListBySession(sessionID)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	if len(replayed) == 0 {
		cmd.Println("No events recorded for this session.")
		return nil
	}

	for _, ev := range replayed {
		content, err := json.Marshal(ev.Content)
		if err != nil {
			content = []byte("{}")
		}
		cmd.Printf("%s %-28s %s\n", ev.Timestamp.Format("15:04:05"), ev.Type, content)
	}
	return nil
}
