package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/chanrelay/chanrelay/internal/relay"
)

var classifyTimeout time.Duration

// classifyCmd lets an operator probe an upstream URL the same way the relay
// service does before wiring it to a channel, without starting a session.
var classifyCmd = &cobra.Command{
	Use:   "classify <stream-url>",
	Short: "Probe a stream URL and print its relay classification",
	Long: `classify fetches the beginning of a stream URL and reports whether
chanrelay would serve it as raw TS passthrough, collapse it from a
single-variant HLS media playlist, or refuse it as unsupported.

Useful for diagnosing why a channel falls back to client-side playback
instead of being relayed.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().DurationVar(&classifyTimeout, "timeout", 10*time.Second, "probe timeout")
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), classifyTimeout)
	defer cancel()

	classifier := relay.NewClassifier(&http.Client{Timeout: classifyTimeout})
	result, err := classifier.Classify(ctx, args[0])
	if err != nil {
		return fmt.Errorf("classifying %s: %w", args[0], err)
	}

	output, err := json.MarshalIndent(struct {
		Mode           string        `json:"mode"`
		Container      string        `json:"container,omitempty"`
		TargetDuration time.Duration `json:"target_duration,omitempty"`
		Reasons        []string      `json:"reasons"`
	}{
		Mode:           result.Mode.String(),
		Container:      result.Container.String(),
		TargetDuration: result.TargetDuration,
		Reasons:        result.Reasons,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling classification result: %w", err)
	}
	fmt.Println(string(output))

	if result.Mode == relay.Unsupported {
		return fmt.Errorf("unsupported stream")
	}
	return nil
}
