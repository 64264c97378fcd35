package geo

import "math"

const metersPerFoot = 0.3048

// Projector converts (lat, lon) pairs to planar feet around a fixed
// reference center via an equirectangular approximation. Graph
// construction picks one reference center (the centroid of the loaded
// network) and projects every node through it, so the resulting (x, y)
// pairs are comparable across the whole graph.
type Projector struct {
	centerLat float64
	centerLon float64
	cosLat    float64
}

// NewProjector builds a Projector referenced to (centerLat, centerLon).
func NewProjector(centerLat, centerLon float64) *Projector {
	return &Projector{
		centerLat: centerLat,
		centerLon: centerLon,
		cosLat:    math.Cos(centerLat * math.Pi / 180),
	}
}

// ToFeet projects (lat, lon) to planar feet relative to the projector's
// reference center. X increases eastward, Y increases northward.
func (p *Projector) ToFeet(lat, lon float64) (x, y float64) {
	xMeters := (lon - p.centerLon) * p.cosLat * math.Pi / 180 * earthRadiusMeters
	yMeters := (lat - p.centerLat) * math.Pi / 180 * earthRadiusMeters
	return xMeters / metersPerFoot, yMeters / metersPerFoot
}
