package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"minewatch/internal/api"
	"minewatch/internal/fileutil"
	"minewatch/internal/ipc"
)

type mineFlags struct {
	mineID int64
	start  string
	end    string
	json   bool
}

func (f *mineFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64VarP(&f.mineID, "mine", "m", 0, "Mine id")
	cmd.Flags().StringVar(&f.start, "start", "", "First date of the window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "Last date of the window (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&f.json, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("mine")
}

func (f *mineFlags) query() ipc.MineQuery {
	return ipc.MineQuery{MineID: f.mineID, StartDate: f.start, EndDate: f.end}
}

func newMineCommand(ctx *commandContext) *cobra.Command {
	mineCmd := &cobra.Command{
		Use:   "mine",
		Short: "Query stored results for a mine",
	}
	mineCmd.AddCommand(newMinePixelsCommand(ctx))
	mineCmd.AddCommand(newMineKPICommand(ctx))
	mineCmd.AddCommand(newMineAlertsCommand(ctx))
	mineCmd.AddCommand(newMineViolationsCommand(ctx))
	mineCmd.AddCommand(newMineZonesCommand(ctx))
	return mineCmd
}

func newMinePixelsCommand(ctx *commandContext) *cobra.Command {
	var flags mineFlags
	cmd := &cobra.Command{
		Use:   "pixels",
		Short: "List stored pixels (defaults to the last 30 days)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Pixels(flags.query())
				if err != nil {
					return err
				}
				if flags.json {
					return writeJSON(cmd, resp)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderPixels(*resp))
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newMineKPICommand(ctx *commandContext) *cobra.Command {
	var flags mineFlags
	cmd := &cobra.Command{
		Use:   "kpi",
		Short: "Show monitoring indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.KPI(flags.query())
				if err != nil {
					return err
				}
				if flags.json {
					return writeJSON(cmd, resp)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderKPI(*resp))
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newMineAlertsCommand(ctx *commandContext) *cobra.Command {
	var flags mineFlags
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List classified zone alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Alerts(flags.query())
				if err != nil {
					return err
				}
				if flags.json {
					return writeJSON(cmd, resp)
				}
				if len(resp.Alerts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No alerts")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderAlerts(resp.Alerts))
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newMineViolationsCommand(ctx *commandContext) *cobra.Command {
	var flags mineFlags
	cmd := &cobra.Command{
		Use:   "violations",
		Short: "List excavation inside protected zones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Violations(flags.query())
				if err != nil {
					return err
				}
				if flags.json {
					return writeJSON(cmd, resp)
				}
				if len(resp.Violations) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No violations")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderViolations(resp.Violations))
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newMineZonesCommand(ctx *commandContext) *cobra.Command {
	var flags mineFlags
	var outPath string
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Export synthesized protected zones as GeoJSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Zones(flags.query())
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				if err := json.Indent(&buf, resp.GeoJSON, "", "  "); err != nil {
					return fmt.Errorf("format geojson: %w", err)
				}
				buf.WriteByte('\n')
				if outPath == "" {
					_, err := buf.WriteTo(cmd.OutOrStdout())
					return err
				}
				if err := fileutil.WriteFile(outPath, buf.Bytes()); err != nil {
					return fmt.Errorf("write %s: %w", outPath, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d zones to %s\n", resp.Count, outPath)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write GeoJSON to this file instead of stdout")
	return cmd
}

func renderPixels(resp api.PixelsResponse) string {
	rows := make([][]string, 0, len(resp.Pixels))
	for _, p := range resp.Pixels {
		rows = append(rows, []string{
			p.Date,
			formatFloat(p.Latitude, 5),
			formatFloat(p.Longitude, 5),
			formatFloat(p.Bands.NDVI, 3),
			formatFloat(p.Bands.NBR, 3),
			anomalyLabel(p.AnomalyLabel),
			formatFloat(p.AnomalyScore, 3),
			yesNo(p.Excavated),
		})
	}
	header := fmt.Sprintf("Mine %d, %s to %s: %d pixels\n", resp.MineID, resp.Window.Start, resp.Window.End, len(resp.Pixels))
	if len(rows) == 0 {
		return header
	}
	return header + renderTable(
		[]string{"Date", "Lat", "Lon", "NDVI", "NBR", "Label", "Score", "Excavated"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft, alignRight, alignLeft},
	)
}

func anomalyLabel(label int) string {
	switch label {
	case -1:
		return "anomalous"
	case 1:
		return "normal"
	default:
		return "-"
	}
}

func renderKPI(k api.KPIResponse) string {
	rows := [][]string{
		{"Window", k.Window.Start + " to " + k.Window.End},
		{"Observations", strconv.Itoa(k.Observations)},
		{"Locations", strconv.Itoa(k.Locations)},
		{"Anomalous", strconv.Itoa(k.Anomalous)},
		{"Excavated pixels", strconv.Itoa(k.Excavated)},
		{"Excavated area (m²)", formatFloat(k.ExcavatedAreaM2, 0)},
		{"Violation pixels", strconv.Itoa(k.ViolationPixels)},
	}
	for _, zone := range sortedKeys(k.ViolationAreaM2) {
		rows = append(rows, []string{displayLabel(zone) + " violation area (m²)", formatFloat(k.ViolationAreaM2[zone], 0)})
	}
	for _, kind := range api.SortedKinds(k.Alerts) {
		rows = append(rows, []string{displayLabel(kind) + " alerts", strconv.Itoa(k.Alerts[kind])})
	}
	if k.LatestAlert != "" {
		rows = append(rows, []string{"Latest alert", k.LatestAlert})
	}
	return fmt.Sprintf("Mine %d\n", k.MineID) + renderTable([]string{"Indicator", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderAlerts(items []api.Alert) string {
	rows := make([][]string, 0, len(items))
	for _, a := range items {
		rows = append(rows, []string{
			a.Date,
			displayLabel(a.ZoneType),
			displayLabel(a.Kind),
			formatFloat(a.AffectedArea, 0),
			strconv.Itoa(a.Streak),
			a.Label,
		})
	}
	return renderTable(
		[]string{"Date", "Zone", "Kind", "Area (m²)", "Streak", "Message"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func renderViolations(items []api.Violation) string {
	rows := make([][]string, 0, len(items))
	for _, v := range items {
		rows = append(rows, []string{
			v.Date,
			formatFloat(v.Latitude, 5),
			formatFloat(v.Longitude, 5),
			displayLabel(v.ZoneType),
			formatFloat(v.AreaM2, 0),
			formatFloat(v.AnomalyScore, 3),
		})
	}
	return renderTable(
		[]string{"Date", "Lat", "Lon", "Zone", "Area (m²)", "Score"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignRight, alignRight},
	)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
