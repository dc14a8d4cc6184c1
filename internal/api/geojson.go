package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// getZonesGeoJSON serves the zone polygons with their current risk as a
// GeoJSON FeatureCollection, ready for map overlays.
func (h *Handler) getZonesGeoJSON(c *gin.Context) {
	zones := h.store.Zones()

	features := make([]Feature, 0, len(zones))
	for _, z := range zones {
		ring := make([][]float64, 0, len(z.Polygon)+1)
		for _, p := range z.Polygon {
			ring = append(ring, []float64{p.Lng, p.Lat})
		}
		if len(z.Polygon) > 0 {
			// GeoJSON rings are explicitly closed.
			ring = append(ring, []float64{z.Polygon[0].Lng, z.Polygon[0].Lat})
		}

		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Polygon",
				Coordinates: [][][]float64{ring},
			},
			Properties: map[string]any{
				"id":          z.ID,
				"name":        z.Name,
				"probability": z.Probability,
				"risk":        string(z.Risk),
			},
		})
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	})
}
