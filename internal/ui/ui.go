package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/linage/linapush/internal/models"
)

const (
	defaultFrameInterval = time.Second / 60
	stressFactor         = 3
	barWidth             = 20
)

// FrameMonitor is the health monitor the dashboard drives. [health.Monitor] implements it.
type FrameMonitor interface {
	OnFrame(ts time.Time)
	Snapshot() models.HealthSnapshot
	Start(ctx context.Context)
	Stop()
}

// ProfileSource supplies the active performance profile. [profile.Controller] implements it.
type ProfileSource interface {
	Current() models.PerformanceProfile
}

// Options configures a dashboard [Model].
type Options struct {
	Monitor      FrameMonitor
	Profile      ProfileSource
	Updates      <-chan models.PerformanceProfile // profile changes; may be nil
	Capabilities models.DeviceCapabilities
	// FrameInterval is the simulated frame period. Defaults to 60 fps.
	FrameInterval time.Duration
	Now           func() time.Time
}

// Model is the runtime health dashboard.
//
// Every tick stands in for a rendered frame and is reported to the monitor. Stress mode stretches the tick so
// frames overrun the budget and the degradation path can be watched live.
type Model struct {
	ctx      context.Context
	opts     Options
	snapshot models.HealthSnapshot
	profile  models.PerformanceProfile
	changes  list.Model
	frames   int
	paused   bool
	stressed bool
	closed   bool
	width    int
	height   int
	help     help.Model
	keys     keyMap
}

// NewModel creates a dashboard model. The monitor is started by [Model.Init] and stopped on quit.
func NewModel(ctx context.Context, opts Options) *Model {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = defaultFrameInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	changes := list.New(nil, list.NewDefaultDelegate(), 60, 12)
	changes.Title = "Profile changes"
	changes.SetShowHelp(false)
	changes.SetFilteringEnabled(false)

	m := &Model{
		ctx:     ctx,
		opts:    opts,
		changes: changes,
		help:    help.New(),
		keys:    newKeyMap(),
	}
	if opts.Profile != nil {
		m.profile = opts.Profile.Current()
	}
	return m
}

// Init starts the monitor, the frame clock and the profile subscription.
func (m *Model) Init() tea.Cmd {
	m.opts.Monitor.Start(m.ctx)
	return tea.Batch(m.tick(), m.waitForProfile())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.changes.SetSize(msg.Width-4, max(msg.Height-16, 4))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		switch msg.kind {
		case MsgFrame:
			if !m.paused {
				m.opts.Monitor.OnFrame(msg.data.(time.Time))
				m.frames++
			}
			m.snapshot = m.opts.Monitor.Snapshot()
			return m, m.tick()
		case MsgProfileChanged:
			item := msg.data.(profileItem)
			m.profile = item.profile
			cmd := m.changes.InsertItem(0, item)
			return m, tea.Batch(cmd, m.waitForProfile())
		case MsgUpdatesClosed:
			m.closed = true
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.changes, cmd = m.changes.Update(msg)
	return m, cmd
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.opts.Monitor.Stop()
		return m, tea.Quit
	case key.Matches(msg, m.keys.pause):
		m.paused = !m.paused
		if m.paused {
			m.opts.Monitor.Stop()
		} else {
			m.opts.Monitor.Start(m.ctx)
		}
		return m, nil
	case key.Matches(msg, m.keys.stress):
		m.stressed = !m.stressed
		return m, nil
	}

	var cmd tea.Cmd
	m.changes, cmd = m.changes.Update(msg)
	return m, cmd
}

// interval is the current simulated frame period.
func (m *Model) interval() time.Duration {
	if m.stressed {
		return m.opts.FrameInterval * stressFactor
	}
	return m.opts.FrameInterval
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval(), func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m *Model) waitForProfile() tea.Cmd {
	if m.opts.Updates == nil || m.closed {
		return nil
	}
	return func() tea.Msg {
		p, ok := <-m.opts.Updates
		if !ok {
			return updatesClosedMsg()
		}
		return profileChangedMsg(p, m.opts.Now())
	}
}

// View renders the dashboard.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("Linage runtime health"))
	b.WriteString("\n")
	b.WriteString(styles.panel.Render(m.renderDevice()))
	b.WriteString("\n")
	b.WriteString(styles.panel.Render(m.renderHealth()))
	b.WriteString("\n")
	b.WriteString(styles.panel.Render(m.renderProfile()))
	b.WriteString("\n")
	if len(m.changes.Items()) > 0 {
		b.WriteString(m.changes.View())
		b.WriteString("\n")
	}
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func row(label, value string) string {
	return styles.label.Render(label) + value + "\n"
}

func (m *Model) renderDevice() string {
	c := m.opts.Capabilities
	var b strings.Builder
	b.WriteString(row("Device", fmt.Sprintf("%s (%s)", c.Model, c.Tier)))
	b.WriteString(row("Memory", fmt.Sprintf("%d MB", c.MemoryMB)))
	b.WriteString(row("CPU cores", fmt.Sprintf("%d", c.CPUCoreCount)))
	return strings.TrimSuffix(b.String(), "\n")
}

func (m *Model) renderHealth() string {
	s := m.snapshot
	status := styles.ok.Render("running")
	switch {
	case m.paused:
		status = styles.help.Render("paused")
	case m.stressed:
		status = styles.warn.Render("running, simulating jank")
	}

	var b strings.Builder
	b.WriteString(row("Status", status))
	b.WriteString(row("Mode", styles.mode(s.Mode)))
	b.WriteString(row("Frame rate", fmt.Sprintf("%.1f fps over %d frames", s.AverageFPS, s.Samples)))
	b.WriteString(row("Dropped", fmt.Sprintf("%s %.1f%%", bar(s.DropRate), s.DropRate*100)))
	b.WriteString(row("Memory used", fmt.Sprintf("%s %.1f%%", bar(s.MemoryUsagePercent/100), s.MemoryUsagePercent)))
	b.WriteString(row("Thermal", styles.thermal(s.ThermalState)))
	return strings.TrimSuffix(b.String(), "\n")
}

func (m *Model) renderProfile() string {
	p := m.profile
	var b strings.Builder
	b.WriteString(row("Target", fmt.Sprintf("%d fps", p.TargetFrameRate)))
	b.WriteString(row("Animation", fmt.Sprintf("%.2fx", p.AnimationScale)))
	b.WriteString(row("Images", p.ImageQuality.String()))
	b.WriteString(row("Concurrency", fmt.Sprintf("%d", p.MaxConcurrentOperations)))
	b.WriteString(row("Cache", fmt.Sprintf("%.2fx", p.CacheSizeFactor)))
	return strings.TrimSuffix(b.String(), "\n")
}

// bar draws a fixed-width gauge for a fraction in [0, 1].
func bar(frac float64) string {
	frac = min(max(frac, 0), 1)
	filled := int(frac*barWidth + 0.5)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "]"
}

// Frames reports how many frames have been fed to the monitor.
func (m *Model) Frames() int { return m.frames }
