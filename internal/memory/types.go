package memory

import (
	"math"
	"time"
)

// Kind identifies one of the four memory subsystems.
type Kind string

const (
	KindEpisodic   Kind = "episodic"   // experiences and events
	KindSemantic   Kind = "semantic"   // facts and knowledge
	KindSpatial    Kind = "spatial"    // location-based memory
	KindProcedural Kind = "procedural" // strategies and behaviors
)

// Kinds lists every memory kind in canonical order.
func Kinds() []Kind {
	return []Kind{KindEpisodic, KindSemantic, KindSpatial, KindProcedural}
}

// Outcome of a single experience.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

// Location is a point in the simulated environment.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the Euclidean distance to another location.
func (l Location) Distance(o Location) float64 {
	dx, dy, dz := l.X-o.X, l.Y-o.Y, l.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// CellKey buckets the location into a unit grid cell on the x/y plane,
// used to group experiences during consolidation.
func (l Location) CellKey() string {
	return cellKey(l.X, l.Y)
}

// Experience is an episodic memory: one concrete event in the worm's life.
type Experience struct {
	ID               string             `json:"_key,omitempty"`
	WormID           string             `json:"worm_id"`
	Timestamp        time.Time          `json:"timestamp"`
	Location         Location           `json:"location"`
	Goal             string             `json:"goal"`
	EnvironmentState map[string]any     `json:"environment_state,omitempty"`
	ActionsTaken     []Action           `json:"actions_taken"`
	MotorCommands    map[string]float64 `json:"motor_commands"`
	Outcome          Outcome            `json:"outcome"`
	FitnessChange    float64            `json:"fitness_change"`
	EnergyChange     float64            `json:"energy_change"`
	Duration         float64            `json:"duration"`
	Tags             []string           `json:"tags,omitempty"`
	Importance       float64            `json:"importance"`
}

// Action is one step the worm took during an experience.
type Action struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// KnowledgeFact is a semantic memory: knowledge derived from experience.
type KnowledgeFact struct {
	ID                string    `json:"_key,omitempty"`
	WormID            string    `json:"worm_id"`
	FactType          string    `json:"fact_type"` // location, behavior, environment
	Content           string    `json:"content"`
	Confidence        float64   `json:"confidence"`
	SourceExperiences []string  `json:"source_experiences,omitempty"`
	EvidenceCount     int       `json:"evidence_count"`
	FirstLearned      time.Time `json:"first_learned"`
	LastUpdated       time.Time `json:"last_updated"`
	Tags              []string  `json:"tags,omitempty"`
}

// SpatialMemory aggregates visit and success statistics for a region.
type SpatialMemory struct {
	ID                   string             `json:"_key,omitempty"`
	WormID               string             `json:"worm_id"`
	Coordinates          Location           `json:"coordinates"`
	RegionType           string             `json:"region_type"` // food_rich, obstacle, neutral, unknown
	VisitCount           int                `json:"visit_count"`
	SuccessRate          float64            `json:"success_rate"`
	FoodFoundCount       int                `json:"food_found_count"`
	ObstaclesEncountered int                `json:"obstacles_encountered"`
	FirstVisited         time.Time          `json:"first_visited"`
	LastVisited          time.Time          `json:"last_visited"`
	TotalTimeSpent       float64            `json:"total_time_spent"`
	ChemicalGradients    map[string]float64 `json:"chemical_gradients,omitempty"`
	Tags                 []string           `json:"tags,omitempty"`
}

// Strategy is a procedural memory: a reusable behavioral recipe.
type Strategy struct {
	ID                 string         `json:"_key,omitempty"`
	WormID             string         `json:"worm_id"`
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	TriggerConditions  map[string]any `json:"trigger_conditions"`
	ActionSequence     []Action       `json:"action_sequence"`
	UsageCount         int            `json:"usage_count"`
	SuccessCount       int            `json:"success_count"`
	FailureCount       int            `json:"failure_count"`
	SuccessRate        float64        `json:"success_rate"`
	AverageFitnessGain float64        `json:"average_fitness_gain"`
	Created            time.Time      `json:"created"`
	LastUsed           time.Time      `json:"last_used"`
	LastUpdated        time.Time      `json:"last_updated"`
	Tags               []string       `json:"tags,omitempty"`
	Importance         float64        `json:"importance"`
}

// Query selects memories across one or more kinds.
type Query struct {
	Kinds          []Kind     `json:"kinds"`
	Text           string     `json:"text,omitempty"` // free text for similarity search
	Location       *Location  `json:"location,omitempty"`
	LocationRadius float64    `json:"location_radius,omitempty"`
	Since          *time.Time `json:"since,omitempty"`
	Until          *time.Time `json:"until,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	WormID         string     `json:"worm_id,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	MinRelevance   float64    `json:"min_relevance,omitempty"`
}

// Result is a single memory returned from a query, with its relevance score.
type Result struct {
	Kind      Kind           `json:"kind"`
	Relevance float64        `json:"relevance"`
	Document  map[string]any `json:"document"`
}

// Stats is the per-worm memory statistics snapshot pushed to the dashboard.
type Stats struct {
	EpisodicCount     int      `json:"episodic_count"`
	SpatialCount      int      `json:"spatial_count"`
	SemanticCount     int      `json:"semantic_count"`
	ProceduralCount   int      `json:"procedural_count"`
	TotalExperiences  int      `json:"total_experiences"`
	SuccessRate       float64  `json:"success_rate"`
	LocationsVisited  int      `json:"locations_visited"`
	StrategiesLearned int      `json:"strategies_learned"`
	KnowledgeFacts    int      `json:"knowledge_facts"`
	MemoryConfidence  float64  `json:"memory_confidence"`
	Insights          []string `json:"insights"`
}

// SpatialContext summarizes what the worm knows about an area.
type SpatialContext struct {
	IsFamiliar      bool     `json:"is_familiar"`
	VisitCount      int      `json:"visit_count"`
	SuccessRate     float64  `json:"average_success_rate"`
	RegionType      string   `json:"region_type"`
	NearbyLocations int      `json:"nearby_locations"`
	Recommendations []string `json:"recommendations"`
}

// ConsolidationResult describes one consolidation pass.
type ConsolidationResult struct {
	ConsolidatedCount int           `json:"consolidated_count"`
	NewKnowledgeCount int           `json:"new_knowledge_count"`
	UpdatedStrategies []string      `json:"updated_strategies"`
	ProcessingTime    time.Duration `json:"processing_time"`
	Summary           string        `json:"summary"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
