package main

import (
	"context"
	"fmt"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/urfave/cli/v3"
)

// CatalogSongs lists songs, optionally for a single edition.
func (r *Runner) CatalogSongs(ctx context.Context, cmd *cli.Command) error {
	page, err := r.catalog.Songs(ctx, cmd.Int("page"), cmd.Int("page-size"), cmd.Int("year"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(page, cmd.Bool("pretty"))
	}

	title := "Songs"
	if year := cmd.Int("year"); year > 0 {
		title = fmt.Sprintf("Top2000 %d", year)
	}
	r.writePlainHeader(title)
	for _, s := range page.Items {
		rank := ""
		if s.Position > 0 {
			rank = fmt.Sprintf("%4d. ", s.Position)
		}
		r.writePlain("%s%s - %s", rank, s.ArtistName, s.Title)
		if s.ReleaseYear > 0 {
			r.writePlain(" (%d)", s.ReleaseYear)
		}
		r.writePlain("\n")
	}
	r.writePage(page.Page, page.PageSize, page.TotalCount, page.HasNext())
	return nil
}

// CatalogSong shows one song.
func (r *Runner) CatalogSong(ctx context.Context, cmd *cli.Command) error {
	id := cmd.IntArg("id")
	if id <= 0 {
		return fmt.Errorf("%w: song id", shared.ErrMissingArgument)
	}

	song, err := r.catalog.Song(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(song, cmd.Bool("pretty"))
	}

	r.writePlainHeader(song.Title)
	r.writePlain("Artist: %s\n", song.ArtistName)
	if song.ReleaseYear > 0 {
		r.writePlain("Released: %d\n", song.ReleaseYear)
	}
	if song.SpotifyID != "" {
		r.writePlain("Spotify: spotify:track:%s\n", song.SpotifyID)
	}
	if song.Lyrics != "" {
		r.writePlainln("%s", song.Lyrics)
	}
	return nil
}

// CatalogArtist shows one artist.
func (r *Runner) CatalogArtist(ctx context.Context, cmd *cli.Command) error {
	id := cmd.IntArg("id")
	if id <= 0 {
		return fmt.Errorf("%w: artist id", shared.ErrMissingArgument)
	}

	artist, err := r.catalog.Artist(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(artist, cmd.Bool("pretty"))
	}

	r.writePlainHeader(artist.Name)
	if artist.Biography != "" {
		r.writePlainln("%s", artist.Biography)
	}
	if artist.Wiki != "" {
		r.writePlain("Wiki: %s\n", artist.Wiki)
	}
	return nil
}

// CatalogArtists lists artists.
func (r *Runner) CatalogArtists(ctx context.Context, cmd *cli.Command) error {
	page, err := r.catalog.Artists(ctx, cmd.Int("page"), cmd.Int("page-size"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(page, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Artists")
	for _, a := range page.Items {
		r.writePlain("%6d  %s\n", a.ID, a.Name)
	}
	r.writePage(page.Page, page.PageSize, page.TotalCount, page.HasNext())
	return nil
}

// CatalogYears lists the editions the API knows.
func (r *Runner) CatalogYears(ctx context.Context, cmd *cli.Command) error {
	years, err := r.catalog.Years(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(years, cmd.Bool("pretty"))
	}

	for _, y := range years {
		r.writePlain("%d\n", y)
	}
	return nil
}

func (r *Runner) writePage(page, size, total int, more bool) {
	r.writePlain("\nPage %d (%d per page, %d total)", page, size, total)
	if more {
		r.writePlain(", next: --page %d", page+1)
	}
	r.writePlain("\n")
}
