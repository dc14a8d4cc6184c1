// Package geo holds the pure geometry used by prediction and routing:
// spherical centroid, ray-cast point-in-polygon and haversine distance.
package geo

import (
	"math"

	"github.com/minewatch/pitguard/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used by DistanceMeters.
const EarthRadiusMeters = 6371000.0

// Centroid averages the polygon's vertices on the unit sphere and
// re-projects back to lat/lng. The result does not depend on vertex order.
func Centroid(polygon []models.LatLng) models.LatLng {
	var x, y, z float64
	for _, p := range polygon {
		lat := p.Lat * math.Pi / 180
		lng := p.Lng * math.Pi / 180
		x += math.Cos(lat) * math.Cos(lng)
		y += math.Cos(lat) * math.Sin(lng)
		z += math.Sin(lat)
	}

	n := float64(len(polygon))
	x /= n
	y /= n
	z /= n

	lng := math.Atan2(y, x)
	hyp := math.Sqrt(x*x + y*y)
	lat := math.Atan2(z, hyp)
	return models.LatLng{Lat: lat * 180 / math.Pi, Lng: lng * 180 / math.Pi}
}

// PointInPolygon runs the standard ray-casting parity test. The result is
// well-defined for strictly interior and exterior points; for points
// exactly on an edge or vertex it is implementation-dependent.
func PointInPolygon(point models.LatLng, polygon []models.LatLng) bool {
	inside := false
	for i, j := 0, len(polygon)-1; i < len(polygon); j, i = i, i+1 {
		xi, yi := polygon[i].Lng, polygon[i].Lat
		xj, yj := polygon[j].Lng, polygon[j].Lat

		intersects := (yi > point.Lat) != (yj > point.Lat) &&
			point.Lng < (xj-xi)*(point.Lat-yi)/(yj-yi)+xi
		if intersects {
			inside = !inside
		}
	}
	return inside
}

// DistanceMeters is the haversine great-circle distance between two points.
func DistanceMeters(a, b models.LatLng) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return EarthRadiusMeters * 2 * math.Asin(math.Sqrt(h))
}
