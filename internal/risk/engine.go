// Package risk turns a consistent world-state view into per-zone rockfall
// probabilities, evacuation routes, personalized worker alerts and the
// supervisor risk ranking. Everything here is pure computation: missing
// inputs degrade to fixed baselines, never to errors.
package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/minewatch/pitguard/internal/geo"
	"github.com/minewatch/pitguard/internal/models"
	"github.com/minewatch/pitguard/internal/state"
)

// WalkingSpeedMps is the assumed evacuation pace with PPE.
const WalkingSpeedMps = 1.2

// Logistic model constants. Weights and saturation divisors are design
// constants of the classifier, not tunables.
const (
	weightSlope        = 3.0
	weightCrack        = 2.5
	weightDisplacement = 2.2
	weightRainfall     = 1.8
	weightPorePressure = 1.5
	weightVibration    = 1.2
	bias               = -2.2

	satSlopeDegrees    = 45.0
	satDisplacementMm  = 20.0
	satRainfallMmH     = 30.0
	satPorePressureKpa = 100.0
	satVibrationMmS    = 10.0
)

// Baselines used when a zone has no terrain or sensor data yet.
const (
	defaultSlope        = 25.0
	defaultCrack        = 0.1
	defaultDisplacement = 2.0
	defaultRainfall     = 0.0
	defaultPorePressure = 10.0
	defaultVibration    = 0.5
)

// Classify maps a probability to a risk level under the given thresholds.
func Classify(probability float64, t models.Thresholds) models.RiskLevel {
	switch {
	case probability > t.High:
		return models.RiskHigh
	case probability > t.Medium:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Predict runs the logistic classifier over every zone in the view and
// derives the barricade flag and evacuation routes.
func Predict(v state.View, now time.Time) models.Prediction {
	zones := make([]models.Zone, len(v.Zones))
	barricade := false

	for i, z := range v.Zones {
		slope := valueOr(v.Slope, z.ID, defaultSlope)
		crack := valueOr(v.Crack, z.ID, defaultCrack)

		disp, rain, pore, vib := defaultDisplacement, defaultRainfall, defaultPorePressure, defaultVibration
		if s, ok := v.Sensors[z.ID]; ok {
			disp, rain, pore, vib = s.Displacement, s.Rainfall, s.PorePressure, s.Vibration
		}

		fSlope := slope / satSlopeDegrees
		fCrack := crack
		fDisp := math.Min(disp/satDisplacementMm, 1)
		fRain := math.Min(rain/satRainfallMmH, 1)
		fPore := math.Min(pore/satPorePressureKpa, 1)
		fVib := math.Min(vib/satVibrationMmS, 1)

		score := weightSlope*fSlope +
			weightCrack*fCrack +
			weightDisplacement*fDisp +
			weightRainfall*fRain +
			weightPorePressure*fPore +
			weightVibration*fVib +
			bias
		probability := 1 / (1 + math.Exp(-score))

		level := Classify(probability, v.Thresholds)
		if level == models.RiskHigh {
			barricade = true
		}

		z.Probability = probability
		z.Risk = level
		z.RecommendedActions = state.ActionsForRisk(level)
		zones[i] = z
	}

	return models.Prediction{
		Timestamp:        now,
		Zones:            zones,
		Flags:            models.PredictionFlags{Barricade: barricade},
		EvacuationRoutes: ComputeEvacuationRoutes(zones, v.Exits),
	}
}

// ComputeEvacuationRoutes builds a centroid-to-nearest-exit route for
// every high-risk zone. Ties keep the first minimal exit in iteration
// order; with no exits configured a zone simply yields no route.
func ComputeEvacuationRoutes(zones []models.Zone, exits []models.SafeExit) []models.EvacuationRoute {
	routes := []models.EvacuationRoute{}
	for _, z := range zones {
		if z.Risk != models.RiskHigh {
			continue
		}

		centroid := geo.Centroid(z.Polygon)
		bestIdx := -1
		bestDist := 0.0
		for i, e := range exits {
			d := geo.DistanceMeters(centroid, e.Location)
			if bestIdx < 0 || d < bestDist {
				bestIdx, bestDist = i, d
			}
		}
		if bestIdx < 0 {
			continue
		}

		exit := exits[bestIdx]
		routes = append(routes, models.EvacuationRoute{
			ZoneID:         z.ID,
			ZoneName:       z.Name,
			ExitID:         exit.ID,
			ExitName:       exit.Name,
			Path:           []models.LatLng{centroid, exit.Location},
			DistanceMeters: bestDist,
			ETAMinutes:     bestDist / WalkingSpeedMps / 60,
		})
	}
	return routes
}

// PersonalizedAlerts builds one evacuation alert per worker. A worker
// whose resolved zone is high-risk is directed to that zone's route exit;
// everyone else gets the fixed all-clear.
func PersonalizedAlerts(workers []models.WorkerTag, p models.Prediction) []models.EvacuationAlert {
	highZones := make(map[string]bool)
	for _, z := range p.Zones {
		if z.Risk == models.RiskHigh {
			highZones[z.ID] = true
		}
	}
	routesByZone := make(map[string]models.EvacuationRoute)
	for _, r := range p.EvacuationRoutes {
		routesByZone[r.ZoneID] = r
	}

	alerts := make([]models.EvacuationAlert, 0, len(workers))
	for _, w := range workers {
		if w.ZoneID != "" && highZones[w.ZoneID] {
			exitName := "nearest exit"
			var path []models.LatLng
			if r, ok := routesByZone[w.ZoneID]; ok {
				exitName = r.ExitName
				path = r.Path
			}
			alerts = append(alerts, models.EvacuationAlert{
				WorkerID:        w.ID,
				Message:         fmt.Sprintf("Evacuate immediately via safest route to %s.", exitName),
				EvacuationRoute: path,
				Urgency:         "High",
				Language:        "en",
			})
			continue
		}
		alerts = append(alerts, models.EvacuationAlert{
			WorkerID:        w.ID,
			Message:         "Safe - No Action Required.",
			EvacuationRoute: []models.LatLng{},
			Urgency:         "Low",
			Language:        "en",
		})
	}
	return alerts
}

// Assessment ranks zones for the supervisor view:
// base score by level (low 10, medium 20, high 40) + floor(probability*50)
// + occupant count capped at 10, total capped at 100, sorted descending.
func Assessment(p models.Prediction, workers []models.WorkerTag) []models.RiskAssessmentItem {
	byZone := make(map[string]int)
	for _, w := range workers {
		if w.ZoneID != "" {
			byZone[w.ZoneID]++
		}
	}

	items := make([]models.RiskAssessmentItem, 0, len(p.Zones))
	for _, z := range p.Zones {
		base := levelScore(z.Risk)
		probScore := int(math.Floor(z.Probability * 50))
		occupants := byZone[z.ID]
		capped := occupants
		if capped > 10 {
			capped = 10
		}
		score := base + probScore + capped
		if score > 100 {
			score = 100
		}

		action := "Safe"
		switch {
		case score >= 70:
			action = "Evacuate immediately"
		case score >= 40:
			action = "Monitor"
		}

		items = append(items, models.RiskAssessmentItem{
			ZoneID:            z.ID,
			RiskScore:         score,
			WorkersAtRisk:     occupants,
			RecommendedAction: action,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RiskScore > items[j].RiskScore
	})
	return items
}

func levelScore(level models.RiskLevel) int {
	switch level {
	case models.RiskHigh:
		return 40
	case models.RiskMedium:
		return 20
	default:
		return 10
	}
}

func valueOr(m map[string]float64, key string, fallback float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}
