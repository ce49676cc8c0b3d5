package cluster

// Options configures the point index
type Options struct {
	MinZoom  int     `koanf:"min_zoom"`
	MaxZoom  int     `koanf:"max_zoom"`  // last zoom at which points are still clustered
	RadiusPx float64 `koanf:"radius_px"` // clustering radius in projected pixels
	NodeSize int     `koanf:"node_size"` // KD-tree leaf bucket size
}

// maxSupportedZoom keeps formation zooms inside the five id bits reserved for them
const maxSupportedZoom = 30

// DefaultOptions returns the cluster settings used by the 2D map
func DefaultOptions() Options {
	return Options{
		MinZoom:  0,
		MaxZoom:  17,
		RadiusPx: 60,
		NodeSize: 64,
	}
}

// normalized fills invalid fields with defaults and clamps zoom levels
func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.MinZoom < 0 {
		o.MinZoom = 0
	}
	if o.MaxZoom <= 0 {
		o.MaxZoom = def.MaxZoom
	}
	if o.MaxZoom > maxSupportedZoom {
		o.MaxZoom = maxSupportedZoom
	}
	if o.MinZoom > o.MaxZoom {
		o.MinZoom = o.MaxZoom
	}
	if o.RadiusPx <= 0 {
		o.RadiusPx = def.RadiusPx
	}
	if o.NodeSize <= 0 {
		o.NodeSize = def.NodeSize
	}
	return o
}
