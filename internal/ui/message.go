package ui

import (
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/playback"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/services"
	tea "github.com/charmbracelet/bubbletea"
)

// MsgKind enumerates all message types in the application.
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
	MsgSnapshot MsgKind = iota
	MsgSearchResults
	MsgCommandDone
	MsgUpdatesClosed
)

// snapshotMsg is the constructor for [MsgSnapshot]
func snapshotMsg(s playback.Snapshot) Msg {
	return Msg{kind: MsgSnapshot, data: s}
}

type searchResults struct {
	query  string
	tracks []services.SpotifyTrack
	err    error
}

// searchResultsMsg is the constructor for [MsgSearchResults]
func searchResultsMsg(query string, tracks []services.SpotifyTrack, err error) Msg {
	return Msg{kind: MsgSearchResults, data: searchResults{query, tracks, err}}
}

type commandDone struct {
	name string
	err  error
}

// commandDoneMsg is the constructor for [MsgCommandDone]
func commandDoneMsg(name string, err error) Msg {
	return Msg{kind: MsgCommandDone, data: commandDone{name, err}}
}

func updatesClosedMsg() Msg {
	return Msg{kind: MsgUpdatesClosed}
}
