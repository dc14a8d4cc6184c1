package risk

import (
	"math"
	"time"

	"github.com/minewatch/pitguard/internal/models"
)

// Summary is the dashboard-shaped view of a prediction: overall status,
// the worst zone, and a per-zone sensor availability digest.
type Summary struct {
	Status              string                       `json:"status"`
	Probability         float64                      `json:"probability"`
	EstimatedTimeWindow *string                      `json:"estimated_time_window"`
	UnstableZones       []UnstableZone               `json:"unstable_zones"`
	SensorSummary       map[string]ZoneSensorSummary `json:"sensor_summary"`
	Timestamp           time.Time                    `json:"timestamp"`
}

type UnstableZone struct {
	ZoneID             string           `json:"zone_id"`
	Name               string           `json:"name"`
	Polygon            []models.LatLng  `json:"polygon"`
	RiskLevel          models.RiskLevel `json:"risk_level"`
	Probability        float64          `json:"probability"`
	RecommendedActions []string         `json:"recommendedActions"`
}

type SensorChannel struct {
	Value  *float64 `json:"value"`
	Status string   `json:"status"` // ok or missing
}

type ZoneSensorSummary struct {
	DopplerRadar   SensorChannel `json:"doppler_radar"`
	Vibration      SensorChannel `json:"vibration"`
	SlopeStability SensorChannel `json:"slope_stability"`
}

// Summarize condenses a prediction for the operator dashboard.
func Summarize(p models.Prediction, sensors map[string]models.SensorReading) Summary {
	out := Summary{
		Status:        "Safe",
		UnstableZones: []UnstableZone{},
		SensorSummary: make(map[string]ZoneSensorSummary, len(p.Zones)),
		Timestamp:     p.Timestamp,
	}
	if len(p.Zones) == 0 {
		return out
	}

	highest := p.Zones[0]
	for _, z := range p.Zones[1:] {
		if z.Probability > highest.Probability {
			highest = z
		}
	}
	out.Probability = round2(highest.Probability)

	if highest.Risk == models.RiskHigh {
		out.Status = "Risk Detected"
		window := "30-60 minutes"
		if out.Probability > 0.9 {
			window = "5-15 minutes"
		} else if out.Probability > 0.7 {
			window = "15-30 minutes"
		}
		out.EstimatedTimeWindow = &window
	}

	for _, z := range p.Zones {
		if z.Risk != models.RiskLow {
			out.UnstableZones = append(out.UnstableZones, UnstableZone{
				ZoneID:             z.ID,
				Name:               z.Name,
				Polygon:            z.Polygon,
				RiskLevel:          z.Risk,
				Probability:        round2(z.Probability),
				RecommendedActions: z.RecommendedActions,
			})
		}

		summary := ZoneSensorSummary{
			DopplerRadar:   SensorChannel{Status: "missing"},
			Vibration:      SensorChannel{Status: "missing"},
			SlopeStability: SensorChannel{Status: "missing"},
		}
		if s, ok := sensors[z.ID]; ok {
			disp, vib, pore := s.Displacement, s.Vibration, s.PorePressure
			summary.DopplerRadar = SensorChannel{Value: &disp, Status: "ok"}
			summary.Vibration = SensorChannel{Value: &vib, Status: "ok"}
			summary.SlopeStability = SensorChannel{Value: &pore, Status: "ok"}
		}
		out.SensorSummary[z.ID] = summary
	}

	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
