package ui

import (
	"fmt"
	"strings"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/services"
	"github.com/charmbracelet/bubbles/list"
)

var (
	_ list.Item = trackItem{}
)

// trackItem wraps [services.SpotifyTrack] to implement [list.Item].
type trackItem struct {
	track services.SpotifyTrack
}

func (i trackItem) FilterValue() string { return i.track.Name }
func (i trackItem) Title() string       { return i.track.Name }
func (i trackItem) Description() string {
	names := make([]string, 0, len(i.track.Artists))
	for _, a := range i.track.Artists {
		names = append(names, a.Name)
	}
	desc := strings.Join(names, ", ")
	if i.track.Album.Name != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album.Name)
	}
	return desc
}
