package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"minewatch/internal/api"
	"minewatch/internal/daemonrun"
	"minewatch/internal/ipc"
	"minewatch/internal/logging"
	"minewatch/internal/mines"
	"minewatch/internal/pipeline"
	"minewatch/internal/store"
)

type pipelineFlags struct {
	start string
	end   string
	json  bool
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "First date of the window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "Last date of the window (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&f.json, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
}

// runOutcome is one mine's result from a local run.
type runOutcome struct {
	MineID int64               `json:"mineId"`
	Result *api.PipelineResult `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags pipelineFlags
	var mineIDs []int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline in-process for one or more mines",
		Long: "Run the pipeline without a daemon. Each --mine is processed concurrently,\n" +
			"bounded by pipeline.max_concurrent_tasks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(mineIDs) == 0 {
				return errors.New("at least one --mine is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			requests := make([]pipeline.Request, 0, len(mineIDs))
			for _, id := range mineIDs {
				req, err := pipeline.NewRequest(id, flags.start, flags.end)
				if err != nil {
					return err
				}
				requests = append(requests, req)
			}

			level := cfg.Logging.Level
			if ctx.logLevel() != "" {
				level = ctx.logLevel()
			}
			logger, err := logging.New(logging.Options{
				Level:            level,
				Format:           cfg.Logging.Format,
				OutputPaths:      []string{"stderr"},
				ErrorOutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			catalog, err := mines.LoadCatalog(cfg.Paths.MinesFile)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			orchestrator, err := daemonrun.NewOrchestrator(cfg, catalog, st, logger, nil)
			if err != nil {
				return err
			}

			outcomes := make([]runOutcome, len(requests))
			var mu sync.Mutex
			failed := 0
			var g errgroup.Group
			g.SetLimit(max(cfg.Pipeline.MaxConcurrentTasks, 1))
			for i, req := range requests {
				g.Go(func() error {
					res, err := orchestrator.Run(cmd.Context(), req, nil)
					out := runOutcome{MineID: req.MineID}
					if err != nil {
						out.Error = err.Error()
						mu.Lock()
						failed++
						mu.Unlock()
					} else {
						dto := api.FromResult(res)
						out.Result = &dto
					}
					outcomes[i] = out
					return nil
				})
			}
			_ = g.Wait()

			if flags.json {
				if err := writeJSON(cmd, outcomes); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), renderRunOutcomes(outcomes))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d runs failed", failed, len(outcomes))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().Int64SliceVarP(&mineIDs, "mine", "m", nil, "Mine id to process (repeatable)")
	return cmd
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags pipelineFlags
	var mineID int64
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a pipeline request to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.PipelineRequest{MineID: mineID, StartDate: flags.start, EndDate: flags.end}
			return ctx.withClient(func(client *ipc.Client) error {
				call := client.Submit
				if wait {
					call = client.Run
				}
				resp, err := call(req)
				if err != nil {
					return err
				}
				if flags.json {
					return writeJSON(cmd, resp.Task)
				}
				printTask(cmd.OutOrStdout(), resp.Task)
				if resp.Task.Status == "failed" {
					return fmt.Errorf("task %s failed: %s", resp.Task.ID, resp.Task.Error)
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().Int64VarP(&mineID, "mine", "m", 0, "Mine id to process")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the task finishes")
	_ = cmd.MarkFlagRequired("mine")
	return cmd
}

func newTaskCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "task <id>",
		Short: "Show one pipeline task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Task(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Task)
				}
				printTask(cmd.OutOrStdout(), resp.Task)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List pipeline tasks tracked by the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Tasks()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Tasks)
				}
				if len(resp.Tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTasks(resp.Tasks))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printTask(w io.Writer, t api.Task) {
	fmt.Fprintf(w, "Task:     %s\n", t.ID)
	fmt.Fprintf(w, "Mine:     %d\n", t.MineID)
	fmt.Fprintf(w, "Window:   %s to %s\n", t.Window.Start, t.Window.End)
	fmt.Fprintf(w, "Status:   %s\n", displayLabel(t.Status))
	fmt.Fprintf(w, "Progress: %s%% (%s)\n", formatFloat(t.Progress.Percent, 0), displayLabel(t.Progress.Stage))
	if t.Progress.Message != "" {
		fmt.Fprintf(w, "Message:  %s\n", t.Progress.Message)
	}
	if t.Error != "" {
		fmt.Fprintf(w, "Error:    %s (retryable: %s)\n", t.Error, yesNo(t.Retryable))
	}
	if t.Result != nil {
		fmt.Fprint(w, renderResults([]api.PipelineResult{*t.Result}))
	}
}

func renderTasks(tasks []api.Task) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			shortID(t.ID),
			strconv.FormatInt(t.MineID, 10),
			t.Window.Start + ".." + t.Window.End,
			displayLabel(t.Status),
			displayLabel(t.Progress.Stage),
			formatFloat(t.Progress.Percent, 0) + "%",
			t.Error,
		})
	}
	return renderTable(
		[]string{"Task", "Mine", "Window", "Status", "Stage", "Progress", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func renderResults(results []api.PipelineResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, resultRow(r))
	}
	return renderTable(resultHeaders, rows, resultAligns)
}

func renderRunOutcomes(outcomes []runOutcome) string {
	headers := append([]string{}, resultHeaders...)
	headers = append(headers, "Error")
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Result == nil {
			row := make([]string, len(resultHeaders), len(headers))
			row[0] = strconv.FormatInt(o.MineID, 10)
			row[1] = "failed"
			rows = append(rows, append(row, o.Error))
			continue
		}
		rows = append(rows, append(resultRow(*o.Result), ""))
	}
	return renderTable(headers, rows, resultAligns)
}

var (
	resultHeaders = []string{"Mine", "Outcome", "Ranges", "Pixels", "Violations", "Alerts", "Excavated", "Zones"}
	resultAligns  = []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}
)

func resultRow(r api.PipelineResult) []string {
	outcome := "processed"
	if r.Skipped {
		outcome = "up to date"
	}
	return []string{
		strconv.FormatInt(r.MineID, 10),
		outcome,
		strconv.Itoa(len(r.Processed)),
		strconv.Itoa(r.Inserted.Observations),
		strconv.Itoa(r.Inserted.Violations),
		strconv.Itoa(r.Inserted.Alerts),
		strconv.Itoa(r.Excavated),
		strconv.Itoa(r.Zones),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
