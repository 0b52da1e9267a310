package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"nameaffirm/internal/platform/kafka/consumer"
)

// Event sources accepted by replay.
const (
	SourceIDV        = "idv"
	SourceProctoring = "proctoring"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	File string
}

// ReplayFailure reports one event that could not be applied.
type ReplayFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// ReplayResult summarizes a replay run.
type ReplayResult struct {
	Source   string          `json:"source"`
	Total    int             `json:"total"`
	Applied  int             `json:"applied"`
	Failures []ReplayFailure `json:"failures"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay idv|proctoring",
		Short: "Apply status events from a file through the reconcilers",
		Long: `Apply a JSON array of status events exactly as the consumer would.

Each element uses the same shape as the Kafka message body for its source.
Every event is attempted; failures are reported and do not stop the run.

Exit codes:
  0 - every event applied
  1 - at least one event failed
  2 - command error (unreadable file, unreachable database, etc.)`,
		Example: `  nameaffirmctl replay idv --file idv-events.json
  cat exam-events.json | nameaffirmctl replay proctoring --file -`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{SourceIDV, SourceProctoring},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "JSON array of events, or - for stdin (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, source string) error {
	if source != SourceIDV && source != SourceProctoring {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown source %q: must be idv or proctoring", source))
	}

	raw, err := readInput(cmd, opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	var bodies []json.RawMessage
	if err := json.Unmarshal(raw, &bodies); err != nil {
		return WrapExitError(ExitCommandError, "events file must hold a JSON array", err)
	}

	b, err := opts.backend(cmd.Context())
	if err != nil {
		return err
	}
	defer b.Close()

	handler := b.IDV
	if source == SourceProctoring {
		handler = b.Proctoring
	}

	result := ReplayResult{Source: source, Total: len(bodies), Failures: []ReplayFailure{}}
	for i, body := range bodies {
		msg := &consumer.Message{
			Topic:  "replay." + source,
			Value:  body,
			Offset: int64(i),
		}
		if err := handler.Handle(cmd.Context(), msg); err != nil {
			result.Failures = append(result.Failures, ReplayFailure{Index: i, Error: err.Error()})
			continue
		}
		result.Applied++
	}

	if opts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		outputReplayText(cmd.OutOrStdout(), result)
	}
	if len(result.Failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d events failed", len(result.Failures), result.Total))
	}
	return nil
}

func outputReplayText(w io.Writer, result ReplayResult) {
	fmt.Fprintf(w, "Replayed %d %s events: %d applied, %d failed.\n",
		result.Total, result.Source, result.Applied, len(result.Failures))
	for _, f := range result.Failures {
		fmt.Fprintf(w, "  event %d: %s\n", f.Index, f.Error)
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
