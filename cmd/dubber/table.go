package main

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"dubber/internal/queue"
)

func newTableWriter(headers ...string) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	configs := make([]table.ColumnConfig, len(headers))
	for i, h := range headers {
		header[i] = h
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)
	return tw
}

func renderJobTable(jobs []*queue.Job) string {
	tw := newTableWriter("ID", "STATUS", "STAGE", "LANGUAGE", "CREATED", "DETAIL")
	for _, job := range jobs {
		detail := job.OutputAsset
		if job.Status == queue.StatusFailed {
			detail = job.ErrorMessage
		}
		tw.AppendRow(table.Row{
			job.ID,
			string(job.Status),
			string(job.Stage),
			job.TargetLanguage,
			job.CreatedAt.Local().Format(time.DateTime),
			truncate(detail, 48),
		})
	}
	return tw.Render()
}

func renderStatsTable(stats map[queue.Status]int) string {
	tw := newTableWriter("STATUS", "JOBS")
	total := 0
	for _, status := range []queue.Status{queue.StatusPending, queue.StatusRunning, queue.StatusDone, queue.StatusFailed} {
		count := stats[status]
		total += count
		tw.AppendRow(table.Row{string(status), count})
	}
	tw.AppendFooter(table.Row{"total", total})
	return tw.Render()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
