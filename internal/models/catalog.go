package models

// Song is a Top2000 catalog entry.
type Song struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ArtistID    int    `json:"artistId"`
	ArtistName  string `json:"artistName"`
	ReleaseYear int    `json:"releaseYear,omitempty"`
	Lyrics      string `json:"lyrics,omitempty"`
	SpotifyID   string `json:"spotifyId,omitempty"`
	Position    int    `json:"position,omitempty"`
}

// Artist is a Top2000 artist.
type Artist struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Biography string `json:"biography,omitempty"`
	Wiki      string `json:"wiki,omitempty"`
	Photo     string `json:"photo,omitempty"`
}

// Page is a paginated API result.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}

// HasNext reports whether more pages follow this one.
func (p Page[T]) HasNext() bool {
	return p.Page*p.PageSize < p.TotalCount
}
