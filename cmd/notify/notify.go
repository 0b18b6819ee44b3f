// Package notify provides the command that sends a test run summary
package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	notifypkg "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/notify"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// Command returns a cobra command that sends a test summary to the
// configured shoutrrr URLs and MQTT broker
func Command(rt *runtime.Context) *cobra.Command {
	var (
		fail     bool
		metadata []string
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test run summary to the configured notification targets",
		Long: `Send a test run summary through the notification targets.

Examples:
  # Basic summary
  cvat-tools notify

  # Summary with fields, as a failed run
  cvat-tools notify --metadata="new_images=42" --metadata="task=New Data Import" --fail`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !rt.Notifier.Enabled() {
				return fmt.Errorf("no notification targets configured, set notify.urls or mqtt.enabled")
			}
			fields, err := ParseMetadata(metadata)
			if err != nil {
				return err
			}
			summary := rt.Summary("notify", nil)
			summary.Fields = fields
			if fail {
				summary.Status = notifypkg.StatusFailed
				summary.Error = "test failure"
			}
			if err := rt.Notifier.Send(cmd.Context(), summary); err != nil {
				return fmt.Errorf("failed to send summary: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Summary sent: run_id=%s status=%s", summary.RunID, summary.Status)
			if len(fields) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " fields=%d", len(fields))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().BoolVar(&fail, "fail", false, "Send the summary of a failed run")
	cmd.Flags().StringSliceVar(&metadata, "metadata", nil, "Fields in format key=value (supports numbers, booleans, and strings)")

	return cmd
}

// ParseMetadata turns key=value pairs into summary fields. Values are
// numbers or booleans when they parse as such, strings otherwise.
func ParseMetadata(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid metadata format: %s (expected key=value)", kv)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			fields[key] = floatVal
		} else if boolVal, err := strconv.ParseBool(value); err == nil {
			fields[key] = boolVal
		} else {
			fields[key] = value
		}
	}
	return fields, nil
}
