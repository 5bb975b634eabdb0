package formatter

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/notify"
	"github.com/linage/linapush/internal/profile"
	"github.com/linage/linapush/internal/shared"
	th "github.com/linage/linapush/internal/testing"
)

func TestParseFormat(t *testing.T) {
	tc := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: Text},
		{in: "text", want: Text},
		{in: "MD", want: Markdown},
		{in: "markdown", want: Markdown},
		{in: "csv", want: CSV},
		{in: "yaml", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWriteProfileTable(t *testing.T) {
	r := profile.NewResolver(nil)

	t.Run("CSV", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteProfileTable(&buf, r, CSV); err != nil {
			t.Fatalf("WriteProfileTable failed: %v", err)
		}

		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if want := 1 + len(models.AllTiers)*len(models.AllHealthModes); len(records) != want {
			t.Fatalf("expected %d rows, got %d", want, len(records))
		}
		if strings.Join(records[0], ",") != "Tier,Mode,Animation,Images,Concurrency,FPS,Cache" {
			t.Errorf("unexpected headers %v", records[0])
		}
		if records[1][0] != "low_end" || records[1][1] != "normal" {
			t.Errorf("expected low_end/normal first, got %v", records[1][:2])
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteProfileTable(&buf, r, Markdown); err != nil {
			t.Fatalf("WriteProfileTable failed: %v", err)
		}
		out := buf.String()
		if !strings.HasPrefix(out, "## Performance profiles\n\n| Tier | Mode |") {
			t.Errorf("unexpected Markdown header:\n%s", out)
		}
		if !strings.Contains(out, "| premium | normal | 1.00 |") {
			t.Errorf("missing premium row:\n%s", out)
		}
	})

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteProfileTable(&buf, r, Text); err != nil {
			t.Fatalf("WriteProfileTable failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if !strings.HasPrefix(lines[0], "TIER") {
			t.Errorf("expected upper-case header, got %q", lines[0])
		}
		if len(lines) != 13 {
			t.Errorf("expected 13 lines, got %d", len(lines))
		}
	})

	t.Run("write errors", func(t *testing.T) {
		for _, format := range []Format{Text, Markdown, CSV} {
			if err := WriteProfileTable(&th.FWriter{}, r, format); err == nil {
				t.Errorf("%s: expected error from failing writer", format)
			}
		}

		var buf bytes.Buffer
		lw := th.NewLimitedWriter(1, 0, &buf)
		if err := WriteProfileTable(&lw, r, Text); err == nil {
			t.Errorf("expected error once the write limit is hit")
		}
	})
}

func TestWriteCapabilities(t *testing.T) {
	caps := models.DeviceCapabilities{
		Tier:                    models.TierHighEnd,
		Model:                   "Pixel 8",
		MemoryMB:                8192,
		CPUCoreCount:            8,
		HasHardwareAcceleration: true,
		Screen:                  models.ScreenMetrics{Density: 2.6, WidthPx: 1080, HeightPx: 2400},
	}

	var buf bytes.Buffer
	if err := WriteCapabilities(&buf, caps, Text); err != nil {
		t.Fatalf("WriteCapabilities failed: %v", err)
	}
	for _, want := range []string{"high_end", "Pixel 8", "8192 MB", "1080x2400 @ 2.6x"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestWriteStats(t *testing.T) {
	stats := notify.Stats{
		Received: 10,
		Shown:    6,
		Dropped: map[notify.DropReason]int{
			notify.DropReason("rate_limited"): 3,
			notify.DropReason("quiet_hours"):  1,
		},
	}

	var buf bytes.Buffer
	if err := WriteStats(&buf, stats, CSV); err != nil {
		t.Fatalf("WriteStats failed: %v", err)
	}
	out := buf.String()
	quiet := strings.Index(out, "dropped.quiet_hours,1")
	rate := strings.Index(out, "dropped.rate_limited,3")
	if quiet < 0 || rate < 0 {
		t.Fatalf("missing drop reasons:\n%s", out)
	}
	if quiet > rate {
		t.Errorf("drop reasons should be sorted")
	}
	if !strings.Contains(out, "received,10") {
		t.Errorf("missing received counter:\n%s", out)
	}
}

func TestWriteHistory(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []models.NotificationRecord{
		{ID: "a", Type: models.TypePromotion, Timestamp: at, Shown: true},
		{ID: "b", Type: models.TypePaymentDue, Timestamp: at.Add(time.Minute), Shown: true},
	}

	var buf bytes.Buffer
	if err := WriteHistory(&buf, records, Markdown); err != nil {
		t.Fatalf("WriteHistory failed: %v", err)
	}
	if !strings.Contains(buf.String(), "| b | payment_due | 2026-03-01T12:01:00Z | true |") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestMarkdownEscapesPipes(t *testing.T) {
	var buf bytes.Buffer
	caps := models.DeviceCapabilities{Model: "a|b"}
	if err := WriteCapabilities(&buf, caps, Markdown); err != nil {
		t.Fatalf("WriteCapabilities failed: %v", err)
	}
	if !strings.Contains(buf.String(), `a\|b`) {
		t.Errorf("expected escaped pipe:\n%s", buf.String())
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	r := profile.NewResolver(nil)

	tc := []struct {
		name   string
		prefix string
	}{
		{name: "profiles.md", prefix: "## Performance profiles"},
		{name: "profiles.csv", prefix: "Tier,Mode"},
		{name: "profiles.txt", prefix: "TIER"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			err := WriteFile(path, func(w io.Writer, f Format) error { return WriteProfileTable(w, r, f) })
			if err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}
			th.AssertFileExists(t, path)
			if content := th.MustReadFile(t, path); !strings.HasPrefix(content, tt.prefix) {
				t.Errorf("expected %q prefix, got %q", tt.prefix, content[:min(len(content), 40)])
			}
		})
	}

	t.Run("bad path", func(t *testing.T) {
		err := WriteFile(filepath.Join(dir, "missing", "x.md"), func(io.Writer, Format) error { return nil })
		if err == nil {
			t.Errorf("expected error for missing directory")
		}
	})
}
