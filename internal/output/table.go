package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/pixelctl/pixelctl/internal/core"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
)

// tableStyle is the rounded style with headers and footers left as written.
func tableStyle() table.Style {
	style := table.StyleRounded
	style.Format.Header = text.FormatDefault
	style.Format.Footer = text.FormatDefault
	return style
}

// emptyBox renders a titled box around a single note.
func emptyBox(title, note string) string {
	return ascii.DrawBox(strings.Join([]string{title, "", note}, "\n"), 0)
}

// LimitsTable renders limiter snapshots, one row per task and endpoint.
func LimitsTable(groups []pixelapi.TaskLimits) string {
	rows := 0
	for _, group := range groups {
		rows += len(group.Endpoints)
	}
	if rows == 0 {
		return emptyBox("Rate Limits", "(no endpoints contacted yet)")
	}

	t := table.NewWriter()
	t.SetStyle(tableStyle())
	t.AppendHeader(table.Row{"Task", "Endpoint", "Remaining", "Limit", "Reset", "Cooldown", "Retry-After", "Next Wait"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})

	for _, group := range groups {
		for _, state := range group.Endpoints {
			limit := "-"
			if state.RequestsLimit != nil {
				limit = fmt.Sprintf("%d", *state.RequestsLimit)
			}
			wait, reason := state.Wait()
			t.AppendRow(table.Row{
				group.Task,
				state.Endpoint,
				state.RemainingRequests,
				limit,
				formatDelay(state.ResetTime),
				formatDelay(state.CooldownTime),
				formatDelay(state.AntiSpamDelay),
				fmt.Sprintf("%s (%s)", formatDelay(wait), reason),
			})
		}
	}

	return t.Render() + "\n"
}

// PlacementsTable renders journaled placements with a per-status footer.
func PlacementsTable(placements []core.Placement) string {
	if len(placements) == 0 {
		return emptyBox("Placement History", "(no placements recorded)")
	}

	t := table.NewWriter()
	t.SetStyle(tableStyle())
	t.AppendHeader(table.Row{"Placed At", "X", "Y", "Colour", "Status", "Task", "Message"})

	counts := make(map[core.PlacementStatus]int)
	for _, placement := range placements {
		counts[placement.Status]++
		t.AppendRow(table.Row{
			placement.PlacedAt.Local().Format(time.DateTime),
			placement.X,
			placement.Y,
			placement.Color.Hex(),
			string(placement.Status),
			placement.TokenIndex,
			truncate(placement.Message, 48),
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", summarizeCounts(counts), "", ""})
	return t.Render() + "\n"
}

// StatsTable renders a flat key/value document, keys sorted. Nested values
// are shown as compact JSON.
func StatsTable(title string, stats map[string]any) string {
	if len(stats) == 0 {
		return emptyBox(title, "(no statistics)")
	}

	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.SetStyle(tableStyle())
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Stat", "Value"})
	for _, key := range keys {
		t.AppendRow(table.Row{key, formatValue(stats[key])})
	}
	return t.Render() + "\n"
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "-"
	case string:
		return truncate(v, 60)
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return truncate(string(data), 60)
	default:
		return fmt.Sprint(v)
	}
}

func summarizeCounts(counts map[core.PlacementStatus]int) string {
	var parts []string
	for _, status := range []core.PlacementStatus{core.PlacementPlaced, core.PlacementSkipped, core.PlacementFailed} {
		if counts[status] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[status], status))
		}
	}
	return strings.Join(parts, ", ")
}

func formatDelay(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(10 * time.Millisecond).String()
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
