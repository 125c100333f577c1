package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/tidwall/gjson"

	"rental_dashboard/internal/invalidation"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1, 0, 0)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1, 0, 0)
			}
			return cellStyle
		})
}

// renderStats formats the admin stats document.
func renderStats(raw []byte, now time.Time) string {
	doc := gjson.ParseBytes(raw)
	var b strings.Builder

	b.WriteString(titleStyle.Render("Response cache") + "\n")
	limit := "unbounded"
	if maxEntries := doc.Get("max_entries").Int(); maxEntries > 0 {
		limit = humanize.Comma(maxEntries)
	}
	ttl := time.Duration(doc.Get("ttl_seconds").Float() * float64(time.Second))

	summary := newTable("backend", "entries", "limit", "ttl", "hit ratio")
	summary.Row(
		doc.Get("backend").String(),
		humanize.Comma(doc.Get("entries").Int()),
		limit,
		ttl.String(),
		fmt.Sprintf("%.1f%%", doc.Get("cache.hit_ratio").Float()*100),
	)
	b.WriteString(summary.Render() + "\n\n")

	counters := newTable("counter", "value")
	requests := doc.Get("cache.requests").Map()
	statuses := make([]string, 0, len(requests))
	for status := range requests {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		counters.Row("requests "+strings.ToLower(status), humanize.Comma(requests[status].Int()))
	}
	counters.Row("evictions", humanize.Comma(doc.Get("cache.evictions").Int()))
	counters.Row("invalidated", humanize.Comma(doc.Get("cache.invalidated").Int()))
	counters.Row("store failures", humanize.Comma(doc.Get("cache.store_failures").Int()))
	b.WriteString(counters.Render() + "\n\n")

	sweep := doc.Get("last_sweep")
	if !sweep.Exists() {
		b.WriteString("last sweep: never\n")
	} else {
		at := sweep.Get("at").Time()
		line := fmt.Sprintf("last sweep: %s, removed %d", humanize.RelTime(at, now, "ago", "from now"), sweep.Get("removed").Int())
		if msg := sweep.Get("error").String(); msg != "" {
			line += " " + warnStyle.Render("("+msg+")")
		}
		b.WriteString(line + "\n")
	}
	if flights := doc.Get("coalescing"); flights.Exists() {
		fmt.Fprintf(&b, "shared misses: %d in flight, oldest %.1fs\n", flights.Get("in_flight").Int(), flights.Get("oldest_seconds").Float())
	}
	fmt.Fprintf(&b, "graph: %d groups, %d mutations\n", len(doc.Get("groups").Array()), doc.Get("mutations").Int())
	return b.String()
}

// renderGraph lists every mutation with the prefixes it purges.
func renderGraph(graph *invalidation.Graph) (string, error) {
	t := newTable("mutation", "groups", "prefixes")
	for _, mutation := range graph.Mutations() {
		groups, err := graph.Groups(mutation)
		if err != nil {
			return "", err
		}
		targets, err := graph.Targets(mutation)
		if err != nil {
			return "", err
		}
		t.Row(string(mutation), strings.Join(groups, ", "), strings.Join(targets, " "))
	}
	return t.Render() + "\n", nil
}

type fetchRow struct {
	Key         string
	Source      string
	ServerCache string
	Stale       bool
	Age         time.Duration
	Bytes       int
	Err         error
}

func renderFetches(rows []fetchRow) string {
	t := newTable("key", "source", "server", "age", "size")
	for _, row := range rows {
		if row.Err != nil {
			t.Row(row.Key, warnStyle.Render("error"), "-", "-", row.Err.Error())
			continue
		}
		source := row.Source
		if row.Stale {
			source += " (stale)"
		}
		server := row.ServerCache
		if server == "" {
			server = "-"
		}
		t.Row(row.Key, source, server, row.Age.Truncate(time.Millisecond).String(), humanize.Bytes(uint64(row.Bytes)))
	}
	return t.Render() + "\n"
}

func renderReport(status int, report invalidation.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "status %d, mutation %s\n", status, report.Mutation)
	fmt.Fprintf(&b, "evicted %d, refreshed %d, failed %d\n", len(report.Evicted), report.Succeeded, report.Failed)
	keys := make([]string, 0, len(report.Errors))
	for key := range report.Errors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteString(warnStyle.Render(fmt.Sprintf("  %s: %v", key, report.Errors[key])) + "\n")
	}
	return b.String()
}
