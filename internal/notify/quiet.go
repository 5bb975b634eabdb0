package notify

import (
	"fmt"
	"time"

	"github.com/linage/linapush/internal/repositories"
	"github.com/linage/linapush/internal/shared"
)

// QuietHours is a daily range of local hours [Start, End) during which notifications are held back.
//
// Start > End wraps past midnight. Start == End is an empty range.
type QuietHours struct {
	Enabled bool
	Start   int
	End     int
}

// QuietHoursFromConfig builds the default range from config.
func QuietHoursFromConfig(cfg shared.NotificationsConfig) QuietHours {
	return QuietHours{Enabled: cfg.QuietHoursEnabled, Start: cfg.QuietHoursStart, End: cfg.QuietHoursEnd}
}

// QuietHoursFromSetting converts a stored preference.
func QuietHoursFromSetting(s repositories.QuietHoursSetting) QuietHours {
	return QuietHours{Enabled: s.Enabled, Start: s.Start, End: s.End}
}

// Contains reports whether t falls inside the range, using t's own location.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled || q.Start == q.End {
		return false
	}
	h := t.Hour()
	if q.Start < q.End {
		return h >= q.Start && h < q.End
	}
	return h >= q.Start || h < q.End
}

func (q QuietHours) String() string {
	if !q.Enabled {
		return "off"
	}
	return fmt.Sprintf("%02d:00-%02d:00", q.Start, q.End)
}
