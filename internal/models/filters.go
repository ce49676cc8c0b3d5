package models

// ViewportFilter represents the query parameters of a settled viewport
type ViewportFilter struct {
	West  float64 `form:"west" json:"west"`
	South float64 `form:"south" json:"south"`
	East  float64 `form:"east" json:"east"`
	North float64 `form:"north" json:"north"`
	Zoom  int     `form:"zoom" json:"zoom"`
}

// BBox returns the filter's bounding box
func (f ViewportFilter) BBox() BBox {
	return BBox{West: f.West, South: f.South, East: f.East, North: f.North}
}

// NoteFilter represents filter parameters for reading notes from storage
type NoteFilter struct {
	Since int64 `form:"since"` // Unix timestamp in milliseconds, 0 for all
	Limit int   `form:"limit"` // 0 for no limit
}
