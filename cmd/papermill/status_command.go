package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"papermill/internal/fileutil"
	"papermill/internal/manifest"
	"papermill/internal/records"
)

type batchSummary struct {
	BatchID    string `json:"batch_id"`
	JobID      string `json:"job_id,omitempty"`
	Status     string `json:"status"`
	TotalItems int    `json:"total_items"`
	TotalPages int    `json:"total_pages"`
	LastError  string `json:"last_error,omitempty"`
}

type fetchPass struct {
	Fetched   int    `json:"fetched"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	UpdatedAt string `json:"updated_at"`
}

type statusReport struct {
	Progress      manifest.Progress `json:"progress"`
	Batches       []batchSummary    `json:"batches"`
	LastFetchPass *fetchPass        `json:"last_fetch_pass,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline progress derived from the stage directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := ctx.layout()
			if err != nil {
				return err
			}
			progress, err := manifest.Rebuild(l)
			if err != nil {
				return fmt.Errorf("scan pipeline: %w", err)
			}

			report := statusReport{Progress: progress}
			ids, err := l.BatchIDs()
			if err != nil {
				return err
			}
			for _, batchID := range ids {
				var meta records.BatchMeta
				if err := fileutil.ReadJSON(l.BatchMetaPath(batchID), &meta); err != nil {
					continue
				}
				report.Batches = append(report.Batches, batchSummary{
					BatchID:    meta.BatchID,
					JobID:      meta.JobID,
					Status:     string(meta.Status),
					TotalItems: meta.TotalItems,
					TotalPages: meta.TotalPages,
					LastError:  meta.LastError,
				})
			}

			var pass fetchPass
			if err := fileutil.ReadJSON(filepath.Join(l.Manifests(), "fetch_cursor.json"), &pass); err == nil {
				report.LastFetchPass = &pass
			}

			if jsonOut || !isatty.IsTerminal(os.Stdout.Fd()) {
				return writeJSON(cmd, report)
			}
			renderStatus(cmd, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}

func renderStatus(cmd *cobra.Command, report statusReport) {
	out := cmd.OutOrStdout()

	progress := table.NewWriter()
	progress.SetOutputMirror(out)
	progress.SetStyle(table.StyleLight)
	progress.AppendHeader(table.Row{"Stage", "Items"})
	progress.AppendRows([]table.Row{
		{"downloaded", report.Progress.Downloaded},
		{"ready", report.Progress.Ready},
		{"in batch", report.Progress.InBatch},
		{"extracted", report.Progress.Extracted},
		{"finalized", report.Progress.Finalized},
		{"failed", report.Progress.Failed},
	})
	progress.Render()

	if report.LastFetchPass != nil {
		fmt.Fprintf(out, "Last fetch pass: %d fetched, %d skipped, %d failed (%s)\n",
			report.LastFetchPass.Fetched, report.LastFetchPass.Skipped,
			report.LastFetchPass.Failed, report.LastFetchPass.UpdatedAt)
	}

	if len(report.Batches) == 0 {
		fmt.Fprintln(out, "No batches.")
		return
	}
	batches := table.NewWriter()
	batches.SetOutputMirror(out)
	batches.SetStyle(table.StyleLight)
	batches.AppendHeader(table.Row{"Batch", "Job", "Status", "Items", "Pages", "Last Error"})
	for _, b := range report.Batches {
		batches.AppendRow(table.Row{b.BatchID, b.JobID, b.Status, b.TotalItems, b.TotalPages, b.LastError})
	}
	batches.Render()
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
