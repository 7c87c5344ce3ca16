package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"NewsCollector/internal/domain"
)

// Summary renders the per-adapter breakdown of one run. It is printed after
// every cycle, including partial and failed ones.
func Summary(rec domain.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %s, %d new in %s\n", rec.ID, rec.Status, rec.TotalNew, formatDuration(rec.DurationSeconds))

	rows := make([][]string, 0, len(rec.BySource)+1)
	for _, key := range sortedKeys(rec.BySource) {
		rows = append(rows, []string{clip(key), strconv.Itoa(rec.BySource[key])})
	}
	rows = append(rows, []string{"total", strconv.Itoa(rec.TotalNew)})
	b.WriteString(renderTable([]string{"Source", "New"}, rows, []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")

	fmt.Fprintf(&b, "Duplicates skipped: %d, ledger size: %d\n", rec.DuplicatesSkipped, rec.TotalFingerprints)
	if len(rec.FailedSources) > 0 {
		names := make([]string, len(rec.FailedSources))
		for i, n := range rec.FailedSources {
			names[i] = clip(n)
		}
		fmt.Fprintf(&b, "Failed sources (%d): %s\n", len(names), strings.Join(names, ", "))
	}
	if rec.Artifact != "" {
		fmt.Fprintf(&b, "Artifact: %s\n", rec.Artifact)
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", rec.Error)
	}
	return b.String()
}

// History renders session totals and the last n runs.
func History(hist domain.RunHistory, n int) string {
	var b strings.Builder
	if hist.TotalRuns == 0 {
		return "No runs recorded.\n"
	}

	avg := float64(hist.TotalCollected) / float64(hist.TotalRuns)
	fmt.Fprintf(&b, "Runs: %d, collected: %d, average per run: %.1f, since %s\n",
		hist.TotalRuns, hist.TotalCollected, avg, hist.StartedAt.Format(time.RFC3339))

	recent := hist.Recent(n)
	rows := make([][]string, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		rec := recent[i]
		rows = append(rows, []string{
			rec.StartedAt.Format("2006-01-02 15:04"),
			string(rec.Status),
			strconv.Itoa(rec.TotalNew),
			strconv.Itoa(len(rec.FailedSources)),
			formatDuration(rec.DurationSeconds),
		})
	}
	b.WriteString(renderTable(
		[]string{"Started", "Status", "New", "Failed", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
	b.WriteString("\n")
	return b.String()
}

// Trends renders indexed article counts per bucket with their share.
func Trends(title string, buckets []domain.TrendBucket) string {
	total := 0
	for _, bucket := range buckets {
		total += bucket.Count
	}
	if total == 0 {
		return title + ": no articles\n"
	}

	rows := make([][]string, 0, len(buckets))
	for _, bucket := range buckets {
		share := 100 * float64(bucket.Count) / float64(total)
		rows = append(rows, []string{clip(bucket.Key), strconv.Itoa(bucket.Count), fmt.Sprintf("%.1f%%", share)})
	}
	return title + "\n" + renderTable(
		[]string{"Key", "Articles", "Share"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
	) + "\n"
}

// Digest is the short plain-text form of a run sent to chat notifiers.
func Digest(rec domain.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "News collection %s: %d new articles in %s\n", rec.Status, rec.TotalNew, formatDuration(rec.DurationSeconds))
	for _, key := range sortedKeys(rec.BySource) {
		fmt.Fprintf(&b, "- %s: %d\n", key, rec.BySource[key])
	}
	if len(rec.FailedSources) > 0 {
		fmt.Fprintf(&b, "Failed: %s\n", strings.Join(rec.FailedSources, ", "))
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", rec.Error)
	}
	return b.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatDuration(seconds float64) string {
	return (time.Duration(seconds * float64(time.Second))).Round(100 * time.Millisecond).String()
}
