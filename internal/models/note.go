package models

// Note represents a memory pinned to a location on the map.
// The clustering engine treats it as an opaque payload and never mutates it.
type Note struct {
	ID              string  `json:"id" db:"id"`
	Lat             float64 `json:"lat" db:"lat"`
	Lng             float64 `json:"lng" db:"lng"`
	Content         string  `json:"content" db:"content"`
	OriginalContent string  `json:"originalContent,omitempty" db:"original_content"`
	LocationName    string  `json:"locationName,omitempty" db:"location_name"`
	CreatedAt       int64   `json:"createdAt" db:"created_at"` // Unix timestamp in milliseconds
	IsAnonymous     bool    `json:"isAnonymous" db:"is_anonymous"`
	AuthorName      string  `json:"authorName,omitempty" db:"author_name"`
	Color           string  `json:"color" db:"color"` // Hex code for marker color
	IsAdmin         bool    `json:"isAdmin,omitempty" db:"is_admin"`
	ImageURL        string  `json:"imageUrl,omitempty" db:"image_url"`
}

// IndexedPoint is the index-owned view of a single note
type IndexedPoint struct {
	ID      string  `json:"id"`
	Lng     float64 `json:"lng"`
	Lat     float64 `json:"lat"`
	Payload Note    `json:"payload"`
}

// Position returns the point's coordinates
func (p IndexedPoint) Position() LatLng {
	return LatLng{Lat: p.Lat, Lng: p.Lng}
}

// NewIndexedPoint wraps a note for indexing
func NewIndexedPoint(n Note) IndexedPoint {
	return IndexedPoint{ID: n.ID, Lng: n.Lng, Lat: n.Lat, Payload: n}
}
