package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minewatch/pitguard/internal/models"
	"github.com/minewatch/pitguard/internal/state"
)

var testThresholds = models.Thresholds{Medium: 0.4, High: 0.7}

func seededView(t *testing.T) state.View {
	t.Helper()
	s := state.NewStore(testThresholds)
	s.Seed(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	return s.View()
}

func TestClassify_Boundaries(t *testing.T) {
	cases := []struct {
		probability float64
		want        models.RiskLevel
	}{
		{0.0, models.RiskLow},
		{0.4, models.RiskLow}, // thresholds are strict
		{0.41, models.RiskMedium},
		{0.7, models.RiskMedium},
		{0.71, models.RiskHigh},
		{1.0, models.RiskHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.probability, testThresholds), "p=%v", tc.probability)
	}
}

func TestPredict_SeededSite(t *testing.T) {
	now := time.Now()
	p := Predict(seededView(t), now)

	require.Len(t, p.Zones, 3)
	assert.Equal(t, now, p.Timestamp)

	// Steep slope and the highest crack index push the North Slope over
	// the high threshold; the other two land in medium.
	assert.InDelta(t, 0.7796, p.Zones[0].Probability, 0.001)
	assert.Equal(t, models.RiskHigh, p.Zones[0].Risk)
	assert.InDelta(t, 0.6766, p.Zones[1].Probability, 0.001)
	assert.Equal(t, models.RiskMedium, p.Zones[1].Risk)
	assert.InDelta(t, 0.5858, p.Zones[2].Probability, 0.001)
	assert.Equal(t, models.RiskMedium, p.Zones[2].Risk)

	assert.True(t, p.Flags.Barricade)
	assert.Equal(t, state.ActionsForRisk(models.RiskHigh), p.Zones[0].RecommendedActions)
}

func TestPredict_DefaultsForUnknownZone(t *testing.T) {
	v := state.View{
		Zones:      []models.Zone{{ID: "zx", Name: "No Data"}},
		Slope:      map[string]float64{},
		Crack:      map[string]float64{},
		Sensors:    map[string]models.SensorReading{},
		Thresholds: testThresholds,
	}

	p := Predict(v, time.Now())
	require.Len(t, p.Zones, 1)
	assert.InDelta(t, 0.5366, p.Zones[0].Probability, 0.001)
	assert.Equal(t, models.RiskMedium, p.Zones[0].Risk)
}

func TestPredict_MonotonicInDisplacement(t *testing.T) {
	v := seededView(t)

	before := Predict(v, time.Now()).Zones[2].Probability

	v.Sensors["z3"] = models.SensorReading{ZoneID: "z3", Displacement: 18, PorePressure: 10, Vibration: 0.5}
	after := Predict(v, time.Now()).Zones[2].Probability

	assert.Greater(t, after, before)
}

func TestPredict_SensorSaturation(t *testing.T) {
	v := seededView(t)

	v.Sensors["z3"] = models.SensorReading{ZoneID: "z3", Displacement: 20, PorePressure: 100, Vibration: 10, Rainfall: 30}
	atSat := Predict(v, time.Now()).Zones[2].Probability

	v.Sensors["z3"] = models.SensorReading{ZoneID: "z3", Displacement: 2000, PorePressure: 9999, Vibration: 500, Rainfall: 900}
	beyond := Predict(v, time.Now()).Zones[2].Probability

	assert.InDelta(t, atSat, beyond, 1e-12, "inputs past saturation must not raise the probability")
}

func TestPredict_NoHighZones_NoBarricadeNoRoutes(t *testing.T) {
	v := seededView(t)
	v.Slope = map[string]float64{"z1": 5, "z2": 5, "z3": 5}
	v.Crack = map[string]float64{"z1": 0, "z2": 0, "z3": 0}

	p := Predict(v, time.Now())
	for _, z := range p.Zones {
		assert.NotEqual(t, models.RiskHigh, z.Risk)
	}
	assert.False(t, p.Flags.Barricade)
	assert.Empty(t, p.EvacuationRoutes)
}

func TestComputeEvacuationRoutes_NearestExit(t *testing.T) {
	v := seededView(t)
	p := Predict(v, time.Now())

	require.Len(t, p.EvacuationRoutes, 1, "only the high-risk zone routes")
	r := p.EvacuationRoutes[0]
	assert.Equal(t, "z1", r.ZoneID)
	assert.Equal(t, "e1", r.ExitID, "Muster Point A is the closest exit to the North Slope")
	require.Len(t, r.Path, 2)
	assert.Equal(t, r.Path[1], models.LatLng{Lat: -24.595, Lng: 135.105})
	assert.Greater(t, r.DistanceMeters, 0.0)
	assert.InDelta(t, r.DistanceMeters/1.2/60, r.ETAMinutes, 1e-9)
}

func TestComputeEvacuationRoutes_NoExits(t *testing.T) {
	zones := []models.Zone{{
		ID:   "z1",
		Risk: models.RiskHigh,
		Polygon: []models.LatLng{
			{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0},
		},
	}}

	routes := ComputeEvacuationRoutes(zones, nil)
	assert.Empty(t, routes)
}

func TestPersonalizedAlerts_HighZoneWorkers(t *testing.T) {
	p := models.Prediction{
		Zones: []models.Zone{
			{ID: "z1", Risk: models.RiskHigh},
			{ID: "z2", Risk: models.RiskLow},
		},
		EvacuationRoutes: []models.EvacuationRoute{{
			ZoneID:   "z1",
			ExitName: "Muster Point A",
			Path:     []models.LatLng{{Lat: -24.6, Lng: 135.1}, {Lat: -24.595, Lng: 135.105}},
		}},
	}
	workers := []models.WorkerTag{
		{ID: "w1", ZoneID: "z1"},
		{ID: "w2", ZoneID: "z2"},
		{ID: "w3", ZoneID: ""},
	}

	alerts := PersonalizedAlerts(workers, p)
	require.Len(t, alerts, 3)

	assert.Equal(t, "w1", alerts[0].WorkerID)
	assert.Equal(t, "Evacuate immediately via safest route to Muster Point A.", alerts[0].Message)
	assert.Equal(t, "High", alerts[0].Urgency)
	assert.Len(t, alerts[0].EvacuationRoute, 2)
	assert.Equal(t, "en", alerts[0].Language)

	for _, a := range alerts[1:] {
		assert.Equal(t, "Safe - No Action Required.", a.Message)
		assert.Equal(t, "Low", a.Urgency)
		assert.NotNil(t, a.EvacuationRoute)
		assert.Empty(t, a.EvacuationRoute)
	}
}

func TestPersonalizedAlerts_HighZoneWithoutRoute(t *testing.T) {
	p := models.Prediction{
		Zones: []models.Zone{{ID: "z1", Risk: models.RiskHigh}},
	}
	alerts := PersonalizedAlerts([]models.WorkerTag{{ID: "w1", ZoneID: "z1"}}, p)

	require.Len(t, alerts, 1)
	assert.Equal(t, "Evacuate immediately via safest route to nearest exit.", alerts[0].Message)
}

func TestAssessment_ScoringAndOrder(t *testing.T) {
	p := models.Prediction{Zones: []models.Zone{
		{ID: "low", Risk: models.RiskLow, Probability: 0.1},
		{ID: "high", Risk: models.RiskHigh, Probability: 0.9},
		{ID: "med", Risk: models.RiskMedium, Probability: 0.5},
	}}
	var workers []models.WorkerTag
	for i := 0; i < 12; i++ {
		workers = append(workers, models.WorkerTag{ID: "h", ZoneID: "high"})
	}
	workers = append(workers, models.WorkerTag{ID: "m", ZoneID: "med"})

	items := Assessment(p, workers)
	require.Len(t, items, 3)

	// high: 40 + floor(0.9*50)=45 + min(12,10)=10 -> 95
	assert.Equal(t, "high", items[0].ZoneID)
	assert.Equal(t, 95, items[0].RiskScore)
	assert.Equal(t, 12, items[0].WorkersAtRisk)
	assert.Equal(t, "Evacuate immediately", items[0].RecommendedAction)

	// med: 20 + 25 + 1 -> 46
	assert.Equal(t, "med", items[1].ZoneID)
	assert.Equal(t, 46, items[1].RiskScore)
	assert.Equal(t, "Monitor", items[1].RecommendedAction)

	// low: 10 + 5 + 0 -> 15
	assert.Equal(t, "low", items[2].ZoneID)
	assert.Equal(t, 15, items[2].RiskScore)
	assert.Equal(t, "Safe", items[2].RecommendedAction)
}

func TestAssessment_ScoreCappedAt100(t *testing.T) {
	p := models.Prediction{Zones: []models.Zone{
		{ID: "z", Risk: models.RiskHigh, Probability: 1.0},
	}}
	var workers []models.WorkerTag
	for i := 0; i < 30; i++ {
		workers = append(workers, models.WorkerTag{ID: "w", ZoneID: "z"})
	}

	items := Assessment(p, workers)
	require.Len(t, items, 1)
	assert.Equal(t, 100, items[0].RiskScore)
	assert.Equal(t, 30, items[0].WorkersAtRisk, "the cap applies to the score, not the reported count")
}
