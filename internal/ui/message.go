package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/linage/linapush/internal/models"
)

// MsgKind enumerates all message types in the dashboard.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgFrame MsgKind = iota
	MsgProfileChanged
	MsgUpdatesClosed
)

// frameMsg is the constructor for [MsgFrame]
func frameMsg(at time.Time) Msg {
	return Msg{kind: MsgFrame, data: at}
}

// profileChangedMsg is the constructor for [MsgProfileChanged]
func profileChangedMsg(p models.PerformanceProfile, at time.Time) Msg {
	return Msg{kind: MsgProfileChanged, data: profileItem{profile: p, at: at}}
}

// updatesClosedMsg is the constructor for [MsgUpdatesClosed]
func updatesClosedMsg() Msg {
	return Msg{kind: MsgUpdatesClosed}
}
