package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/playback"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/services"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	seekStep    = 10 * time.Second
	volumeStep  = 10
	searchLimit = 20
	barWidth    = 40
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	NowPlayingView ViewState = iota
	SearchView
)

// Controller is the playback session as seen by the panel.
type Controller interface {
	Snapshot() playback.Snapshot
	Subscribe(fn func(playback.Snapshot)) func()
	TogglePlay(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	SetVolume(ctx context.Context, percent int) error
	ClearError()
}

// TrackFinder searches the catalog and starts tracks on a device.
type TrackFinder interface {
	SearchTracks(ctx context.Context, q string, limit int) ([]services.SpotifyTrack, error)
	Play(ctx context.Context, deviceID string, uris []string) error
}

// Model represents the TUI application state.
type Model struct {
	ctx         context.Context
	view        ViewState
	session     Controller
	finder      TrackFinder
	updates     chan playback.Snapshot
	unsubscribe func()
	snapshot    playback.Snapshot
	width       int
	height      int
	input       textinput.Model
	results     list.Model
	err         error
	help        help.Model
	keys        keyMap
}

// NewModel creates a panel bound to session. finder may be nil, which disables search.
func NewModel(ctx context.Context, session Controller, finder TrackFinder) *Model {
	input := textinput.New()
	input.Placeholder = "artist or title"
	input.Prompt = "/ "
	input.CharLimit = 120

	m := &Model{
		ctx:      ctx,
		view:     NowPlayingView,
		session:  session,
		finder:   finder,
		updates:  make(chan playback.Snapshot, 1),
		snapshot: session.Snapshot(),
		input:    input,
		results:  list.New(nil, list.NewDefaultDelegate(), 0, 0),
		help:     help.New(),
		keys:     newKeyMap(),
	}
	m.results.Title = "Search results"
	m.unsubscribe = session.Subscribe(m.publish)
	return m
}

// publish keeps only the newest snapshot so a slow renderer never blocks the session.
func (m *Model) publish(s playback.Snapshot) {
	for {
		select {
		case m.updates <- s:
			return
		default:
		}
		select {
		case <-m.updates:
		default:
		}
	}
}

// Close unregisters the panel from the session.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Init starts listening for session snapshots.
func (m *Model) Init() tea.Cmd {
	return m.waitForSnapshot()
}

func (m *Model) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-m.updates:
			return snapshotMsg(s)
		case <-m.ctx.Done():
			return updatesClosedMsg()
		}
	}
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.results.SetSize(max(msg.Width-4, 0), max(msg.Height-8, 0))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case SearchView:
			return m.handleSearchKeys(msg)
		default:
			return m.handlePlayerKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSnapshot:
		m.snapshot = msg.data.(playback.Snapshot)
		return m, m.waitForSnapshot()

	case MsgSearchResults:
		res := msg.data.(searchResults)
		if res.err != nil {
			m.err = res.err
			return m, nil
		}
		items := make([]list.Item, len(res.tracks))
		for i, t := range res.tracks {
			items[i] = trackItem{track: t}
		}
		m.results.Title = fmt.Sprintf("Results for '%s'", res.query)
		cmd := m.results.SetItems(items)
		m.input.Blur()
		return m, cmd

	case MsgCommandDone:
		done := msg.data.(commandDone)
		m.err = done.err
		if done.err == nil && done.name == "play" {
			m.view = NowPlayingView
		}
		return m, nil

	case MsgUpdatesClosed:
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handlePlayerKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggle):
		return m, m.run("toggle", m.session.TogglePlay)
	case key.Matches(msg, m.keys.next):
		return m, m.run("next", m.session.Next)
	case key.Matches(msg, m.keys.previous):
		return m, m.run("previous", m.session.Previous)
	case key.Matches(msg, m.keys.forward):
		return m, m.seek(seekStep)
	case key.Matches(msg, m.keys.rewind):
		return m, m.seek(-seekStep)
	case key.Matches(msg, m.keys.louder):
		return m, m.changeVolume(volumeStep)
	case key.Matches(msg, m.keys.quieter):
		return m, m.changeVolume(-volumeStep)
	case key.Matches(msg, m.keys.dismiss):
		m.err = nil
		m.session.ClearError()
		return m, nil
	case key.Matches(msg, m.keys.search):
		if m.finder == nil {
			return m, nil
		}
		m.view = SearchView
		m.input.SetValue("")
		return m, m.input.Focus()
	}
	return m, nil
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.Close()
		return m, tea.Quit
	}

	if key.Matches(msg, m.keys.back) {
		if m.input.Focused() && len(m.results.Items()) > 0 {
			m.input.Blur()
			return m, nil
		}
		m.input.Blur()
		m.view = NowPlayingView
		return m, nil
	}

	if m.input.Focused() {
		if key.Matches(msg, m.keys.enter) {
			return m, m.searchTracks(strings.TrimSpace(m.input.Value()))
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.results.SelectedItem().(trackItem); ok {
			return m, m.play(item.track.URI)
		}
		return m, nil
	case key.Matches(msg, m.keys.search):
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.results, cmd = m.results.Update(msg)
	return m, cmd
}

func (m *Model) run(name string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg(name, fn(m.ctx))
	}
}

func (m *Model) seek(delta time.Duration) tea.Cmd {
	target := m.snapshot.Position + delta
	if m.snapshot.Duration > 0 {
		target = min(target, m.snapshot.Duration)
	}
	return m.run("seek", func(ctx context.Context) error {
		return m.session.Seek(ctx, max(target, 0))
	})
}

// changeVolume shows the new level right away; the next snapshot carries the device's value.
func (m *Model) changeVolume(delta int) tea.Cmd {
	volume := min(max(m.snapshot.Volume+delta, 0), 100)
	m.snapshot.Volume = volume
	return m.run("volume", func(ctx context.Context) error {
		return m.session.SetVolume(ctx, volume)
	})
}

func (m *Model) searchTracks(query string) tea.Cmd {
	if query == "" {
		return nil
	}
	return func() tea.Msg {
		tracks, err := m.finder.SearchTracks(m.ctx, query, searchLimit)
		return searchResultsMsg(query, tracks, err)
	}
}

func (m *Model) play(uri string) tea.Cmd {
	device := m.snapshot.DeviceID
	if m.snapshot.State != playback.Ready || device == "" {
		return func() tea.Msg {
			return commandDoneMsg("play", fmt.Errorf("player is %s", m.snapshot.State))
		}
	}
	return m.run("play", func(ctx context.Context) error {
		return m.finder.Play(ctx, device, []string{uri})
	})
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case SearchView:
		return m.renderSearch()
	default:
		return m.renderNowPlaying()
	}
}

func (m *Model) renderNowPlaying() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Top2000 Player"))
	b.WriteString("\n")
	b.WriteString(m.renderState())
	b.WriteString("\n\n")

	s := m.snapshot
	if s.Track != nil {
		b.WriteString(styles.track.Render(s.Track.Name))
		b.WriteString("\n")
		b.WriteString(styles.artist.Render(strings.Join(s.Track.Artists, ", ")))
		if s.Track.Album != "" {
			b.WriteString(styles.artist.Render(" • " + s.Track.Album))
		}
		b.WriteString("\n\n")
		b.WriteString(progressBar(s.Position, s.Duration, barWidth))
		b.WriteString(fmt.Sprintf("  %s / %s", formatDuration(s.Position), formatDuration(s.Duration)))
	} else {
		b.WriteString(styles.help.Render("Nothing playing"))
	}
	b.WriteString(fmt.Sprintf("\n\nVolume %d%%", s.Volume))

	if msg := m.errorText(); msg != "" {
		b.WriteString("\n\n")
		b.WriteString(styles.err.Render(msg))
	}

	panel := styles.panel.Render(b.String())
	helpKeys := []key.Binding{m.keys.toggle, m.keys.next, m.keys.previous, m.keys.rewind, m.keys.forward, m.keys.search, m.keys.quit}
	if m.errorText() != "" {
		helpKeys = append(helpKeys, m.keys.dismiss)
	}
	return fmt.Sprintf("%s\n%s", panel, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderState() string {
	s := m.snapshot
	switch s.State {
	case playback.Ready:
		label := "Paused"
		if s.Playing {
			label = "Playing"
		}
		return styles.ok.Render("● " + label)
	case playback.Connecting:
		return styles.warn.Render("○ Connecting...")
	default:
		return styles.help.Render("○ " + s.State.String())
	}
}

func (m *Model) errorText() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v", m.err)
	}
	return m.snapshot.LastError
}

func (m *Model) renderSearch() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.search, m.keys.back}
	body := m.input.View()
	if len(m.results.Items()) > 0 {
		body = fmt.Sprintf("%s\n\n%s", body, m.results.View())
	}
	if m.err != nil {
		body = fmt.Sprintf("%s\n\n%s", body, styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	return fmt.Sprintf("%s\n\n%s", body, m.help.ShortHelpView(helpKeys))
}

func progressBar(pos, total time.Duration, width int) string {
	filled := 0
	if total > 0 {
		filled = int(float64(width) * float64(min(pos, total)) / float64(total))
	}
	return styles.ok.Render(strings.Repeat("━", filled)) + styles.help.Render(strings.Repeat("─", width-filled))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
