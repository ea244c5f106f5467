package main

import (
	"path/filepath"
	"strconv"

	"aum/internal/history"
	"aum/internal/preflight"
	"aum/internal/unlock"
)

func renderJobs(jobs []unlock.Job, colorize bool) string {
	rows := make([][]string, 0, len(jobs))
	for i, job := range jobs {
		result := job.Reason()
		if job.State == unlock.StateSucceeded {
			result = filepath.Base(job.Target)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			job.File.Name,
			colorState(string(job.State), colorize),
			dash(result),
			formatDuration(job.Elapsed()),
		})
	}
	return renderTable(
		[]string{"#", "File", "State", "Result", "Elapsed"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func renderChecks(results []preflight.Result, colorize bool) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "passed"
		if !r.Passed {
			status = "failed"
		}
		rows = append(rows, []string{r.Name, colorState(status, colorize), r.Detail})
	}
	return renderTable([]string{"Check", "Status", "Detail"}, rows, nil)
}

func renderRuns(runs []history.Run, colorize bool) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			formatTimestamp(run.StartedAt),
			colorState(run.Status, colorize),
			strconv.Itoa(run.FilesTotal),
			strconv.Itoa(run.Succeeded),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.TimedOut),
			strconv.Itoa(run.Removed),
		})
	}
	return renderTable(
		[]string{"Run", "Started", "Status", "Files", "Unlocked", "Failed", "Timed Out", "Removed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	)
}

func renderRunJobs(jobs []history.JobRecord, colorize bool) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		result := job.Reason
		if job.State == string(unlock.StateSucceeded) {
			result = filepath.Base(job.Target)
		}
		elapsed := ""
		if !job.FinishedAt.IsZero() {
			elapsed = formatDuration(job.FinishedAt.Sub(job.StartedAt))
		}
		rows = append(rows, []string{
			strconv.Itoa(job.Position),
			job.FileName,
			colorState(job.State, colorize),
			dash(result),
			dash(elapsed),
		})
	}
	return renderTable(
		[]string{"#", "File", "State", "Result", "Elapsed"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
	)
}
