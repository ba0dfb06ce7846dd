package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jx-codes/lootbox/internal/duplex"
)

var (
	runServerAddr string
	runScriptFlag string
	runSessionID  string
)

var runCmd = &cobra.Command{
	Use:   "run [script]",
	Short: "Run an inline script against a running server and print its output",
	Long: `Submits a script to a running lootbox server's duplex endpoint and
prints the result (or error) it returns. The script is given either as the
positional argument or via --script; one of the two is required.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runServerAddr, "server", "127.0.0.1:7337", "lootbox server host:port")
	runCmd.Flags().StringVar(&runScriptFlag, "script", "", "script text (alternative to the positional argument)")
	runCmd.Flags().StringVar(&runSessionID, "session", "", "session id to associate with this run")
}

func runRun(cmd *cobra.Command, args []string) error {
	script := runScriptFlag
	if len(args) > 0 {
		script = args[0]
	}
	if script == "" {
		return fmt.Errorf("a script is required: pass it as an argument or via --script")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	url := fmt.Sprintf("ws://%s/ws", runServerAddr)
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", url, err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	// Discard the welcome frame.
	if _, _, err := ws.Read(ctx); err != nil {
		return fmt.Errorf("reading welcome frame: %w", err)
	}

	id := uuid.NewString()
	req := duplex.ClientFrame{Script: script, ID: id, SessionID: runSessionID}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("submitting script: %w", err)
	}

	for {
		_, resp, err := ws.Read(ctx)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		var frame duplex.ClientFrame
		if err := json.Unmarshal(resp, &frame); err != nil {
			continue
		}
		if frame.ID != id {
			continue // a functions_updated broadcast or unrelated reply
		}
		if frame.Error != "" {
			fmt.Fprintln(os.Stderr, frame.Error)
			if frame.Output != "" {
				fmt.Print(frame.Output)
			}
			os.Exit(1)
		}
		var out string
		if err := json.Unmarshal(frame.Result, &out); err == nil {
			fmt.Print(out)
		} else {
			fmt.Println(string(frame.Result))
		}
		return nil
	}
}
