package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"minewatch/internal/api"
	"minewatch/internal/ipc"
	"minewatch/internal/logstream"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var opts logstream.Options

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		Long: "Display daemon logs from the HTTP log stream. When the API is unreachable the\n" +
			"raw log file is tailed over IPC; --mine, --task and --level need the API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var fallback logstream.TailClient
			apiAddress := ""
			if client, err := ctx.dialClient(); err == nil {
				defer client.Close()
				fallback = client
				if status, statusErr := client.Status(); statusErr == nil {
					apiAddress = status.APIAddress
				}
			}
			apiClient, err := ctx.logStreamClient(apiAddress)
			if err != nil {
				return err
			}

			printed, err := logstream.Stream(cmd.Context(), apiClient, fallback, opts,
				func(evt api.LogEvent) { fmt.Fprintln(out, formatLogEvent(evt)) },
				func(line string) { fmt.Fprintln(out, line) },
			)
			if errors.Is(err, logstream.ErrFiltersRequireAPI) {
				return fmt.Errorf("%w; enable paths.api_bind or drop --mine/--task/--level", err)
			}
			if err != nil {
				if fallback == nil {
					return fmt.Errorf("daemon logs unavailable: %w", err)
				}
				return err
			}
			if !printed && !opts.Follow {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&opts.Lines, "lines", "n", 20, "Number of lines to show (0 for all)")
	cmd.Flags().Int64Var(&opts.Filters.MineID, "mine", 0, "Only show events for this mine")
	cmd.Flags().StringVar(&opts.Filters.TaskID, "task", "", "Only show events for this task")
	cmd.Flags().StringVar(&opts.Filters.Level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.Filters.Search, "search", "", "Only show entries containing this text")
	return cmd
}

func formatLogEvent(evt api.LogEvent) string {
	var b strings.Builder
	ts := evt.Timestamp
	if len(ts) >= 19 {
		ts = strings.Replace(ts[:19], "T", " ", 1)
	}
	fmt.Fprintf(&b, "%s %-5s", ts, strings.ToUpper(evt.Level))
	subject := evt.Component
	if evt.MineID != 0 {
		subject = fmt.Sprintf("%s mine=%d", subject, evt.MineID)
	}
	if subject = strings.TrimSpace(subject); subject != "" {
		fmt.Fprintf(&b, " [%s]", subject)
	}
	b.WriteString(" ")
	b.WriteString(evt.Message)
	for _, key := range sortedKeys(evt.Fields) {
		fmt.Fprintf(&b, " %s=%s", key, evt.Fields[key])
	}
	return b.String()
}

var _ logstream.TailClient = (*ipc.Client)(nil)
