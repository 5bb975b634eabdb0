// package formatter renders device, profile and notification data as plain text, Markdown or CSV
package formatter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/notify"
	"github.com/linage/linapush/internal/shared"
)

// Format selects an output encoding.
type Format int

const (
	Text Format = iota
	Markdown
	CSV
)

func (f Format) String() string {
	switch f {
	case Markdown:
		return "markdown"
	case CSV:
		return "csv"
	default:
		return "text"
	}
}

// ParseFormat maps a --format flag value to a [Format].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text", "txt":
		return Text, nil
	case "markdown", "md":
		return Markdown, nil
	case "csv":
		return CSV, nil
	default:
		return Text, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Resolver is the profile lookup the table export walks. [profile.Resolver] implements it.
type Resolver interface {
	Resolve(tier models.Tier, mode models.HealthMode) models.PerformanceProfile
}

var profileHeaders = []string{"Tier", "Mode", "Animation", "Images", "Concurrency", "FPS", "Cache"}

// WriteProfileTable writes the resolved profile for every tier and health mode.
func WriteProfileTable(w io.Writer, r Resolver, format Format) error {
	var rows [][]string
	for _, tier := range models.AllTiers {
		for _, mode := range models.AllHealthModes {
			p := r.Resolve(tier, mode)
			rows = append(rows, []string{
				tier.String(),
				mode.String(),
				strconv.FormatFloat(p.AnimationScale, 'f', 2, 64),
				p.ImageQuality.String(),
				strconv.Itoa(p.MaxConcurrentOperations),
				strconv.Itoa(p.TargetFrameRate),
				strconv.FormatFloat(p.CacheSizeFactor, 'f', 2, 64),
			})
		}
	}
	return writeTable(w, format, "Performance profiles", profileHeaders, rows)
}

// WriteCapabilities writes a device capability summary.
func WriteCapabilities(w io.Writer, c models.DeviceCapabilities, format Format) error {
	rows := [][]string{
		{"Tier", c.Tier.String()},
		{"Model", c.Model},
		{"Memory", fmt.Sprintf("%d MB", c.MemoryMB)},
		{"CPU cores", strconv.Itoa(c.CPUCoreCount)},
		{"Hardware acceleration", strconv.FormatBool(c.HasHardwareAcceleration)},
		{"Screen", fmt.Sprintf("%dx%d @ %.1fx", c.Screen.WidthPx, c.Screen.HeightPx, c.Screen.Density)},
	}
	return writeTable(w, format, "Device capabilities", []string{"Field", "Value"}, rows)
}

// WriteStats writes dispatcher counters. Drop reasons are listed in a stable order.
func WriteStats(w io.Writer, s notify.Stats, format Format) error {
	rows := [][]string{
		{"received", strconv.Itoa(s.Received)},
		{"shown", strconv.Itoa(s.Shown)},
		{"coalesced", strconv.Itoa(s.Coalesced)},
		{"duplicates", strconv.Itoa(s.Duplicates)},
		{"pending", strconv.Itoa(s.Pending)},
		{"history", strconv.Itoa(s.History)},
	}

	reasons := make([]string, 0, len(s.Dropped))
	for r := range s.Dropped {
		reasons = append(reasons, string(r))
	}
	slices.Sort(reasons)
	for _, r := range reasons {
		rows = append(rows, []string{"dropped." + r, strconv.Itoa(s.Dropped[notify.DropReason(r)])})
	}
	return writeTable(w, format, "Notification stats", []string{"Counter", "Value"}, rows)
}

// WriteHistory writes notification records, oldest first.
func WriteHistory(w io.Writer, records []models.NotificationRecord, format Format) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{r.ID, string(r.Type), r.Timestamp.Format(time.RFC3339), strconv.FormatBool(r.Shown)})
	}
	return writeTable(w, format, "Notification history", []string{"ID", "Type", "Timestamp", "Shown"}, rows)
}

func writeTable(w io.Writer, format Format, title string, headers []string, rows [][]string) error {
	switch format {
	case CSV:
		return writeCSV(w, headers, rows)
	case Markdown:
		return writeMarkdown(w, title, headers, rows)
	default:
		return writeText(w, headers, rows)
	}
}

func writeCSV(w io.Writer, headers []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

func writeMarkdown(w io.Writer, title string, headers []string, rows [][]string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", title)
	fmt.Fprintf(&b, "| %s |\n", strings.Join(headers, " | "))
	fmt.Fprintf(&b, "|%s\n", strings.Repeat("---|", len(headers)))
	for _, row := range rows {
		escaped := make([]string, len(row))
		for i, cell := range row {
			escaped[i] = strings.ReplaceAll(cell, "|", `\|`)
		}
		fmt.Fprintf(&b, "| %s |\n", strings.Join(escaped, " | "))
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write Markdown: %w", err)
	}
	return nil
}

func writeText(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(headers, "\t")))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

// WriteFile renders with fn into path, choosing the format from the file extension.
//
// .md writes Markdown, .csv writes CSV, anything else plain text.
func WriteFile(path string, fn func(io.Writer, Format) error) error {
	format := Text
	switch {
	case strings.HasSuffix(path, ".md"):
		format = Markdown
	case strings.HasSuffix(path, ".csv"):
		format = CSV
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
