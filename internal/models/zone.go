package models

// RiskLevel is the classified rockfall risk of a zone.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank orders risk levels for comparisons. Unknown levels rank lowest.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Zone is a monitored pit sector. Probability and Risk are recomputed on
// every prediction cycle; the polygon and slope are ingestion inputs.
type Zone struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Polygon            []LatLng  `json:"polygon"`
	Probability        float64   `json:"probability"`
	Risk               RiskLevel `json:"risk"`
	RecommendedActions []string  `json:"recommendedActions"`
}

type ExitKind string

const (
	ExitMuster   ExitKind = "muster"
	ExitGate     ExitKind = "gate"
	ExitSafezone ExitKind = "safezone"
)

// SafeExit is static reference data: a muster point, gate or safe zone
// that evacuation routes terminate at.
type SafeExit struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Location LatLng   `json:"location"`
	Type     ExitKind `json:"type"`
}

// EvacuationRoute is a straight-line route from a high-risk zone's
// centroid to its nearest safe exit.
type EvacuationRoute struct {
	ZoneID         string   `json:"zoneId"`
	ZoneName       string   `json:"zoneName"`
	ExitID         string   `json:"exitId"`
	ExitName       string   `json:"exitName"`
	Path           []LatLng `json:"path"`
	DistanceMeters float64  `json:"distanceMeters"`
	ETAMinutes     float64  `json:"etaMinutes"`
}

// Thresholds are the probability cutoffs for risk classification.
// Valid iff 0 < Medium < High < 1.
type Thresholds struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
}

func (t Thresholds) Valid() bool {
	return 0 < t.Medium && t.Medium < t.High && t.High < 1
}
