// Package simulator implements the Condition Simulator (C6): an optional
// peer of real event ingestion that produces synthetic traffic, weather,
// vehicle-breakdown and order events on a seeded tick loop, publishing
// them onto the Event Bus (C5) and tracking their active-event lifecycle
// (countdown, resolution, condition restoration) the same way a real
// ingestion feed would.
package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/eventbus"
	"dispatch/pkg/logger"
)

// Params controls the tick cadence and the per-event-kind Bernoulli
// probabilities evaluated every tick.
type Params struct {
	UpdateIntervalS          float64           `json:"update_interval_s,omitempty"`
	Speed                    float64           `json:"speed,omitempty"`
	TrafficVariability       float64           `json:"traffic_variability,omitempty"`
	WeatherChangeProbability float64           `json:"weather_change_probability,omitempty"`
	VehicleBreakdownProb     float64           `json:"vehicle_breakdown_prob,omitempty"`
	NewOrderProbability      float64           `json:"new_order_probability,omitempty"`
	OrderCancellationProb    float64           `json:"order_cancellation_prob,omitempty"`
	RoadClosureProbability   float64           `json:"road_closure_probability,omitempty"`
	GeoCenter                domain.Coordinate `json:"geo_center,omitempty"`
	GeoRadiusKM              float64           `json:"geo_radius_km,omitempty"`
}

// DefaultParams mirrors the reference simulation's defaults.
func DefaultParams() Params {
	return Params{
		UpdateIntervalS:          30,
		Speed:                    1.0,
		TrafficVariability:       0.3,
		WeatherChangeProbability: 0.1,
		VehicleBreakdownProb:     0.05,
		NewOrderProbability:      0.2,
		OrderCancellationProb:    0.05,
		RoadClosureProbability:   0.02,
		GeoCenter:                domain.Coordinate{Lat: 55.7558, Lon: 37.6176},
		GeoRadiusKM:              50.0,
	}
}

func (p Params) merge(partial Params) Params {
	out := p
	if partial.UpdateIntervalS > 0 {
		out.UpdateIntervalS = partial.UpdateIntervalS
	}
	if partial.Speed > 0 {
		out.Speed = partial.Speed
	}
	if partial.TrafficVariability > 0 {
		out.TrafficVariability = partial.TrafficVariability
	}
	if partial.WeatherChangeProbability > 0 {
		out.WeatherChangeProbability = partial.WeatherChangeProbability
	}
	if partial.VehicleBreakdownProb > 0 {
		out.VehicleBreakdownProb = partial.VehicleBreakdownProb
	}
	if partial.NewOrderProbability > 0 {
		out.NewOrderProbability = partial.NewOrderProbability
	}
	if partial.OrderCancellationProb > 0 {
		out.OrderCancellationProb = partial.OrderCancellationProb
	}
	if partial.RoadClosureProbability > 0 {
		out.RoadClosureProbability = partial.RoadClosureProbability
	}
	if partial.GeoRadiusKM > 0 {
		out.GeoRadiusKM = partial.GeoRadiusKM
	}
	if partial.GeoCenter != (domain.Coordinate{}) {
		out.GeoCenter = partial.GeoCenter
	}
	return out
}

// TrafficCondition is the simulator's view of conditions at one location.
type TrafficCondition struct {
	Location        domain.Coordinate `json:"location"`
	Condition       string            `json:"condition"` // light, normal, heavy, jam
	SpeedMultiplier float64           `json:"speed_multiplier"`
	RadiusKM        float64           `json:"radius_km"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// WeatherCondition is the simulator's single global weather state.
type WeatherCondition struct {
	Condition    string    `json:"condition"` // clear, rain, snow, fog, storm
	Intensity    float64   `json:"intensity"`
	VisibilityKM float64   `json:"visibility_km"`
	SpeedImpact  float64   `json:"speed_impact"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// VehicleStatus is the simulated operational status of a vehicle.
type VehicleStatus struct {
	VehicleID string            `json:"vehicle_id"`
	Status    string            `json:"status"` // available, busy, breakdown, maintenance
	Location  domain.Coordinate `json:"location"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// activeEvent tracks one in-flight synthetic event's countdown to
// resolution, alongside the published domain.Event. remainingMin is
// simulated minutes, decremented once per tick by the tick's simulated
// duration — never by wall-clock elapsed time — so the countdown honors
// the configured speed multiplier the same way the tick cadence does.
type activeEvent struct {
	event        domain.Event
	remainingMin float64
}

// Snapshot is the point-in-time view returned by GetConditions.
type Snapshot struct {
	Running           bool                        `json:"running"`
	TrafficConditions map[string]TrafficCondition `json:"traffic_conditions"`
	WeatherCondition  WeatherCondition            `json:"weather_condition"`
	VehicleStatuses   map[string]VehicleStatus    `json:"vehicle_statuses"`
	ActiveEventCount  int                         `json:"active_event_count"`
}

// Simulator drives the tick loop. The zero value is not usable; build
// one with New.
type Simulator struct {
	bus *eventbus.Bus
	rng *rand.Rand

	mu         sync.Mutex
	params     Params
	running    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
	traffic    map[string]TrafficCondition
	weather    WeatherCondition
	vehicles   map[string]VehicleStatus
	active     map[string]*activeEvent
	eventSeq   int
}

// New builds a Simulator publishing onto bus, seeded with seed for
// deterministic, reproducible ticks across runs (diverging from a
// wall-clock-seeded RNG so tests can assert on exact sequences).
func New(bus *eventbus.Bus, seed int64) *Simulator {
	return &Simulator{
		bus:      bus,
		rng:      rand.New(rand.NewSource(seed)),
		params:   DefaultParams(),
		traffic:  make(map[string]TrafficCondition),
		vehicles: make(map[string]VehicleStatus),
		active:   make(map[string]*activeEvent),
	}
}

// Start begins the tick loop with the given params, merged over the
// current defaults. A no-op if already running.
func (s *Simulator) Start(params Params) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.params = s.params.merge(params)
	s.initializeConditions()
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.loop()
}

// Stop ends the tick loop. A no-op if not running.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	doneCh := s.doneCh
	s.running = false
	s.mu.Unlock()

	<-doneCh
}

// UpdateParams merges partial into the running configuration; it takes
// effect starting the next tick.
func (s *Simulator) UpdateParams(partial Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = s.params.merge(partial)
}

func (s *Simulator) loop() {
	defer close(s.doneCh)
	for {
		s.mu.Lock()
		interval := time.Duration(s.params.UpdateIntervalS/s.params.Speed*1000) * time.Millisecond
		s.mu.Unlock()
		if interval <= 0 {
			interval = time.Second
		}

		select {
		case <-s.stopCh:
			return
		case <-time.After(interval):
		}

		s.tick()
	}
}

// tick runs one simulation step: Bernoulli trials for each event kind,
// then countdown/resolution of active events.
func (s *Simulator) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() < s.params.TrafficVariability {
		s.generateTrafficEvent()
	}
	if s.rng.Float64() < s.params.WeatherChangeProbability {
		s.generateWeatherEvent()
	}
	if s.rng.Float64() < s.params.VehicleBreakdownProb {
		s.generateVehicleBreakdownEvent()
	}
	if s.rng.Float64() < s.params.NewOrderProbability {
		s.generateNewOrderEvent()
	}
	if s.rng.Float64() < s.params.OrderCancellationProb {
		s.generateOrderCancellationEvent()
	}
	if s.rng.Float64() < s.params.RoadClosureProbability {
		s.generateRoadClosureEvent()
	}

	s.resolveExpiredEvents()
}

func (s *Simulator) initializeConditions() {
	for i := 0; i < 5; i++ {
		loc := s.randomLocation()
		key := locationKey(loc)
		condition := []string{"light", "normal", "heavy"}[s.rng.Intn(3)]
		s.traffic[key] = TrafficCondition{
			Location:        loc,
			Condition:       condition,
			SpeedMultiplier: 0.7 + s.rng.Float64()*0.5,
			RadiusKM:        3.0 + s.rng.Float64()*7.0,
			UpdatedAt:       time.Now(),
		}
	}
	s.weather = WeatherCondition{
		Condition:    []string{"clear", "rain", "fog"}[s.rng.Intn(3)],
		Intensity:    0.1 + s.rng.Float64()*0.6,
		VisibilityKM: 5.0 + s.rng.Float64()*45.0,
		SpeedImpact:  0.8 + s.rng.Float64()*0.2,
		UpdatedAt:    time.Now(),
	}
}

var trafficConditions = []string{"light", "normal", "heavy", "jam"}

func trafficSpeedMultiplier(rng *rand.Rand, condition string) float64 {
	switch condition {
	case "light":
		return 1.1 + rng.Float64()*0.2
	case "normal":
		return 0.9 + rng.Float64()*0.2
	case "heavy":
		return 0.6 + rng.Float64()*0.2
	default: // jam
		return 0.2 + rng.Float64()*0.2
	}
}

func (s *Simulator) generateTrafficEvent() {
	loc := s.randomLocation()
	condition := trafficConditions[s.rng.Intn(len(trafficConditions))]
	mult := trafficSpeedMultiplier(s.rng, condition)
	radiusKM := 2.0 + s.rng.Float64()*13.0
	durationMin := float64(15 + s.rng.Intn(106))

	severity := domain.SeverityLow
	if condition == "heavy" || condition == "jam" {
		severity = domain.SeverityMedium
	}

	event := s.newEvent(domain.EventKindTrafficDelay, severity, &loc, durationMin, map[string]any{
		"condition":        condition,
		"speed_multiplier": mult,
		"radius_km":        radiusKM,
	})
	s.publishActive(event, durationMin)

	s.traffic[locationKey(loc)] = TrafficCondition{
		Location:        loc,
		Condition:       condition,
		SpeedMultiplier: mult,
		RadiusKM:        radiusKM,
		UpdatedAt:       time.Now(),
	}
}

var weatherConditions = []string{"clear", "rain", "snow", "fog", "storm"}

var weatherImpacts = map[string][2]float64{
	// visibility_km, speed multiplier
	"clear": {50.0, 1.0},
	"rain":  {20.0, 0.8},
	"snow":  {10.0, 0.6},
	"fog":   {5.0, 0.7},
	"storm": {3.0, 0.5},
}

func (s *Simulator) generateWeatherEvent() {
	var choices []string
	for _, c := range weatherConditions {
		if c != s.weather.Condition {
			choices = append(choices, c)
		}
	}
	condition := choices[s.rng.Intn(len(choices))]
	intensity := 0.1 + s.rng.Float64()*0.8
	impact := weatherImpacts[condition]
	visibility := impact[0] * (1 - intensity*0.5)
	speedImpact := impact[1] * (1 - intensity*0.3)
	durationMin := float64(30 + s.rng.Intn(211))

	severity := domain.SeverityMedium
	if condition == "snow" || condition == "storm" {
		severity = domain.SeverityHigh
	}

	event := s.newEvent(domain.EventKindWeather, severity, nil, durationMin, map[string]any{
		"condition":     condition,
		"intensity":     intensity,
		"visibility_km": visibility,
		"speed_impact":  speedImpact,
	})
	s.publishActive(event, durationMin)

	s.weather = WeatherCondition{
		Condition:    condition,
		Intensity:    intensity,
		VisibilityKM: visibility,
		SpeedImpact:  speedImpact,
		UpdatedAt:    time.Now(),
	}
}

var breakdownRepairMinutes = map[string][2]int{
	"engine_failure":      {120, 300},
	"tire_puncture":       {30, 60},
	"fuel_shortage":       {20, 40},
	"electrical_problem":  {60, 180},
	"transmission_issue":  {180, 360},
}

var breakdownTypes = []string{"engine_failure", "tire_puncture", "fuel_shortage", "electrical_problem", "transmission_issue"}

func (s *Simulator) generateVehicleBreakdownEvent() {
	vehicleID := fmt.Sprintf("vehicle_%d", 1+s.rng.Intn(20))
	loc := s.randomLocation()
	breakdownType := breakdownTypes[s.rng.Intn(len(breakdownTypes))]
	bounds := breakdownRepairMinutes[breakdownType]
	repairMin := float64(bounds[0] + s.rng.Intn(bounds[1]-bounds[0]+1))

	event := s.newEvent(domain.EventKindVehicleBreakdown, domain.SeverityHigh, &loc, repairMin, map[string]any{
		"vehicle_id":             vehicleID,
		"breakdown_type":         breakdownType,
		"estimated_repair_time": repairMin,
	})
	event.VehicleID = vehicleID
	event.TriggersReoptimization = true
	s.publishActive(event, repairMin)

	s.vehicles[vehicleID] = VehicleStatus{
		VehicleID: vehicleID,
		Status:    "breakdown",
		Location:  loc,
		UpdatedAt: time.Now(),
	}
}

var orderPriorities = []string{"low", "medium", "high", "urgent"}

func (s *Simulator) generateNewOrderEvent() {
	pickup := s.randomLocation()
	priority := orderPriorities[s.rng.Intn(len(orderPriorities))]

	severity := domain.SeverityMedium
	if priority == "urgent" {
		severity = domain.SeverityHigh
	}

	event := s.newEvent(domain.EventKindNewUrgentOrder, severity, &pickup, 0, map[string]any{
		"priority":    priority,
		"weight_kg":   1.0 + s.rng.Float64()*49.0,
		"volume_m3":   0.1 + s.rng.Float64()*1.9,
		"window_min":  60 + s.rng.Intn(181),
	})
	event.TriggersReoptimization = priority == "high" || priority == "urgent"
	s.bus.Publish(event)
}

// generateOrderCancellationEvent reuses EventKindCustomerReschedule: the
// data model has no dedicated cancellation kind, and a cancellation is,
// from the solver's perspective, just another change to plan around.
func (s *Simulator) generateOrderCancellationEvent() {
	orderID := fmt.Sprintf("order_%d", 1+s.rng.Intn(100))
	event := s.newEvent(domain.EventKindCustomerReschedule, domain.SeverityMedium, nil, 0, map[string]any{
		"reason": "customer_cancellation",
	})
	event.OrderID = orderID
	s.bus.Publish(event)
}

var closureDurationMinutes = map[string][2]int{
	"construction":   {240, 1440},
	"accident":       {30, 180},
	"weather_damage": {120, 720},
	"maintenance":    {60, 300},
	"special_event":  {120, 480},
}

var closureReasons = []string{"construction", "accident", "weather_damage", "maintenance", "special_event"}

func (s *Simulator) generateRoadClosureEvent() {
	loc := s.randomLocation()
	reason := closureReasons[s.rng.Intn(len(closureReasons))]
	bounds := closureDurationMinutes[reason]
	durationMin := float64(bounds[0] + s.rng.Intn(bounds[1]-bounds[0]+1))

	event := s.newEvent(domain.EventKindRoadClosure, domain.SeverityHigh, &loc, durationMin, map[string]any{
		"reason":           reason,
		"affected_radius_km": 1.0 + s.rng.Float64()*4.0,
	})
	event.TriggersReoptimization = true
	s.publishActive(event, durationMin)
}

// ForceEvent creates and publishes an event of the given kind
// immediately, for manual testing/demos, bypassing the Bernoulli trial.
func (s *Simulator) ForceEvent(kind domain.EventKind, overrides map[string]any) domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case domain.EventKindTrafficDelay:
		s.generateTrafficEvent()
	case domain.EventKindWeather:
		s.generateWeatherEvent()
	case domain.EventKindVehicleBreakdown:
		s.generateVehicleBreakdownEvent()
	case domain.EventKindNewUrgentOrder:
		s.generateNewOrderEvent()
	case domain.EventKindRoadClosure:
		s.generateRoadClosureEvent()
	default:
		loc := s.randomLocation()
		event := s.newEvent(kind, domain.SeverityMedium, &loc, float64(15+s.rng.Intn(46)), overrides)
		s.bus.Publish(event)
		return event
	}

	// Return the most recently created active event.
	var latest *activeEvent
	for _, ae := range s.active {
		if latest == nil || ae.event.Timestamp.After(latest.event.Timestamp) {
			latest = ae
		}
	}
	if latest == nil {
		return domain.Event{}
	}
	return latest.event
}

// GetConditions returns a point-in-time snapshot of simulator state.
func (s *Simulator) GetConditions() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	traffic := make(map[string]TrafficCondition, len(s.traffic))
	for k, v := range s.traffic {
		traffic[k] = v
	}
	vehicles := make(map[string]VehicleStatus, len(s.vehicles))
	for k, v := range s.vehicles {
		vehicles[k] = v
	}

	return Snapshot{
		Running:           s.running,
		TrafficConditions: traffic,
		WeatherCondition:   s.weather,
		VehicleStatuses:   vehicles,
		ActiveEventCount:  len(s.active),
	}
}

// resolveExpiredEvents advances every active event's countdown by one
// tick's worth of simulated time (update_interval_s, independent of the
// wall-clock gap between ticks) and resolves any that have run out,
// per §4.5's per-tick countdown requirement.
func (s *Simulator) resolveExpiredEvents() {
	deltaMin := s.params.UpdateIntervalS / 60.0
	for id, ae := range s.active {
		ae.remainingMin -= deltaMin
		if ae.remainingMin > 0 {
			continue
		}
		s.resolveEvent(ae)
		delete(s.active, id)
	}
}

func (s *Simulator) resolveEvent(ae *activeEvent) {
	switch ae.event.Kind {
	case domain.EventKindVehicleBreakdown:
		if v, ok := s.vehicles[ae.event.VehicleID]; ok {
			v.Status = "available"
			v.UpdatedAt = time.Now()
			s.vehicles[ae.event.VehicleID] = v
		}
	case domain.EventKindTrafficDelay:
		if ae.event.Coordinate != nil {
			key := locationKey(*ae.event.Coordinate)
			if tc, ok := s.traffic[key]; ok {
				tc.Condition = "normal"
				tc.SpeedMultiplier = 1.0
				tc.UpdatedAt = time.Now()
				s.traffic[key] = tc
			}
		}
	}

	resolution := ae.event
	resolution.ID = "resolved_" + ae.event.ID
	resolution.Status = domain.EventStatusResolved
	resolution.Timestamp = time.Now()
	resolution.Severity = domain.SeverityLow
	s.bus.Publish(resolution)

	logger.Info("simulator: event resolved", "kind", ae.event.Kind, "id", ae.event.ID)
}

func (s *Simulator) publishActive(event domain.Event, durationMin float64) {
	s.active[event.ID] = &activeEvent{event: event, remainingMin: durationMin}
	s.bus.Publish(event)
}

func (s *Simulator) newEvent(kind domain.EventKind, severity domain.EventSeverity, loc *domain.Coordinate, durationMin float64, payload map[string]any) domain.Event {
	s.eventSeq++
	return domain.Event{
		ID:         fmt.Sprintf("%s_%d_%d", kind, time.Now().UnixNano(), s.eventSeq),
		Kind:       kind,
		Severity:   severity,
		Status:     domain.EventStatusActive,
		Timestamp:  time.Now(),
		Coordinate: loc,
		Payload:    payload,
	}
}

// randomLocation picks a uniformly-distributed point within the
// simulator's configured geographic radius of its center.
func (s *Simulator) randomLocation() domain.Coordinate {
	radiusDeg := s.params.GeoRadiusKM / 111.0
	angle := s.rng.Float64() * 2 * math.Pi
	distance := math.Sqrt(s.rng.Float64()) * radiusDeg
	return domain.Coordinate{
		Lat: s.params.GeoCenter.Lat + distance*math.Cos(angle),
		Lon: s.params.GeoCenter.Lon + distance*math.Sin(angle),
	}
}

func locationKey(c domain.Coordinate) string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}
