package models

import (
	"fmt"
	"strconv"
)

// ClusterID identifies a cluster within one index build
type ClusterID uint64

// String formats the id the way it travels over the API
func (id ClusterID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// MarshalText implements encoding.TextMarshaler so ids survive JSON intact
func (id ClusterID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *ClusterID) UnmarshalText(b []byte) error {
	parsed, err := ParseClusterID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseClusterID parses an id produced by ClusterID.String
func ParseClusterID(s string) (ClusterID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cluster id %q: %w", s, err)
	}
	return ClusterID(v), nil
}

// Cluster is a query-time aggregate of two or more nearby notes
type Cluster struct {
	ID         ClusterID `json:"id"`
	Center     LatLng    `json:"center"`
	PointCount int       `json:"pointCount"`
}

// Item is one entry of a query result: either a cluster or a single point
type Item struct {
	Cluster *Cluster      `json:"cluster,omitempty"`
	Point   *IndexedPoint `json:"point,omitempty"`
}

// IsCluster reports whether the item holds a cluster
func (it Item) IsCluster() bool {
	return it.Cluster != nil
}

// Position returns the coordinate the item is drawn at
func (it Item) Position() LatLng {
	if it.Cluster != nil {
		return it.Cluster.Center
	}
	if it.Point != nil {
		return it.Point.Position()
	}
	return LatLng{}
}

// Count returns the number of notes represented by the item
func (it Item) Count() int {
	if it.Cluster != nil {
		return it.Cluster.PointCount
	}
	if it.Point != nil {
		return 1
	}
	return 0
}
