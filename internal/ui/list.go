package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"

	"github.com/linage/linapush/internal/models"
)

var (
	_ list.Item = profileItem{}
)

// profileItem wraps a [models.PerformanceProfile] change to implement [list.Item].
type profileItem struct {
	profile models.PerformanceProfile
	at      time.Time
}

func (i profileItem) FilterValue() string { return i.profile.Mode.String() }
func (i profileItem) Title() string {
	return fmt.Sprintf("%s  %s", i.at.Format(time.TimeOnly), i.profile.Mode)
}
func (i profileItem) Description() string {
	return fmt.Sprintf("%d fps • %s images • %.2fx animation • %d ops",
		i.profile.TargetFrameRate, i.profile.ImageQuality, i.profile.AnimationScale, i.profile.MaxConcurrentOperations)
}
