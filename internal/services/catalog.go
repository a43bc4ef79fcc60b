package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/gateway"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
)

// Doer issues authorized API requests; satisfied by *gateway.Client.
type Doer interface {
	Do(ctx context.Context, req *gateway.Request) (*gateway.Response, error)
}

// CatalogService reads and edits the Top2000 catalog through the authorized request gateway.
type CatalogService struct {
	api Doer
}

// NewCatalogService creates a [CatalogService].
func NewCatalogService(api Doer) *CatalogService {
	return &CatalogService{api: api}
}

func (c *CatalogService) do(ctx context.Context, req *gateway.Request, result any) error {
	resp, err := c.api.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return resp.DecodeJSON(result)
}

func pageValues(page, pageSize int) url.Values {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return url.Values{"page": {strconv.Itoa(page)}, "pageSize": {strconv.Itoa(pageSize)}}
}

// Songs lists songs, optionally filtered to a Top2000 edition year.
func (c *CatalogService) Songs(ctx context.Context, page, pageSize, year int) (*models.Page[models.Song], error) {
	query := pageValues(page, pageSize)
	if year > 0 {
		query.Set("year", strconv.Itoa(year))
	}

	var result models.Page[models.Song]
	if err := c.do(ctx, &gateway.Request{Method: http.MethodGet, Path: "/songs", Query: query}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Song returns one song.
func (c *CatalogService) Song(ctx context.Context, id int) (*models.Song, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: song id %d", shared.ErrInvalidArgument, id)
	}
	var song models.Song
	if err := c.do(ctx, &gateway.Request{Method: http.MethodGet, Path: "/songs/" + strconv.Itoa(id)}, &song); err != nil {
		return nil, err
	}
	return &song, nil
}

// UpdateSong replaces a song. Requires an admin session.
func (c *CatalogService) UpdateSong(ctx context.Context, song models.Song) error {
	if song.ID <= 0 {
		return fmt.Errorf("%w: song id %d", shared.ErrInvalidArgument, song.ID)
	}
	return c.do(ctx, &gateway.Request{Method: http.MethodPut, Path: "/songs/" + strconv.Itoa(song.ID), Body: song}, nil)
}

// Artists lists artists.
func (c *CatalogService) Artists(ctx context.Context, page, pageSize int) (*models.Page[models.Artist], error) {
	var result models.Page[models.Artist]
	req := &gateway.Request{Method: http.MethodGet, Path: "/artists", Query: pageValues(page, pageSize)}
	if err := c.do(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Artist returns one artist.
func (c *CatalogService) Artist(ctx context.Context, id int) (*models.Artist, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: artist id %d", shared.ErrInvalidArgument, id)
	}
	var artist models.Artist
	if err := c.do(ctx, &gateway.Request{Method: http.MethodGet, Path: "/artists/" + strconv.Itoa(id)}, &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}

// UpdateArtist replaces an artist. Requires an admin session.
func (c *CatalogService) UpdateArtist(ctx context.Context, artist models.Artist) error {
	if artist.ID <= 0 {
		return fmt.Errorf("%w: artist id %d", shared.ErrInvalidArgument, artist.ID)
	}
	return c.do(ctx, &gateway.Request{Method: http.MethodPut, Path: "/artists/" + strconv.Itoa(artist.ID), Body: artist}, nil)
}

// Years lists the Top2000 editions.
func (c *CatalogService) Years(ctx context.Context) ([]int, error) {
	var years []int
	if err := c.do(ctx, &gateway.Request{Method: http.MethodGet, Path: "/years"}, &years); err != nil {
		return nil, err
	}
	return years, nil
}

// AuthStatus probes whether the API accepts the current credential.
// A rejection here is expected for anonymous users and never ends the session.
func (c *CatalogService) AuthStatus(ctx context.Context) (bool, error) {
	resp, err := c.api.Do(ctx, &gateway.Request{Method: http.MethodGet, Path: "/auth/me", SuppressInvalidation: true})
	if err != nil {
		return false, err
	}
	switch {
	case resp.OK():
		return true, nil
	case resp.Unauthorized(), resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, resp.Err()
	}
}
