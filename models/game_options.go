package models

const (
	UniverseTiny = iota
	UniverseSmall
	UniverseMedium
	UniverseLarge
	UniverseHuge
)

const (
	DensitySparse = iota
	DensityNormal
	DensityDense
	DensityPacked
)

const (
	DistanceClose = iota
	DistanceModerate
	DistanceFarther
	DistanceDistant
)

// AI race codes (0 = random) and skill levels (0 = random) as the engine numbers them.
var (
	AIRaces       = []string{"Random", "Robotoids", "Turindrones", "Automitrons", "Rototills", "Cybertrons", "Macinti"}
	AISkillLevels = []string{"Random", "Easy", "Standard", "Tough", "Expert"}
)

// GameOptions holds everything the engine needs to create a universe.
// Victory conditions are optional; nil means disabled. Columns carry no
// defaults since gorm would substitute them for false and 0 on insert.
type GameOptions struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	GameID uint `json:"game_id" gorm:"uniqueIndex;not null"`

	UniverseSize     int `json:"universe_size"`
	UniverseDensity  int `json:"universe_density"`
	StartingDistance int `json:"starting_distance"`

	MaximumMinerals   bool `json:"maximum_minerals"`
	SlowTech          bool `json:"slow_tech"`
	AcceleratedBBS    bool `json:"accelerated_bbs"`
	RandomEvents      bool `json:"random_events"`
	ComputerAlliances bool `json:"computer_alliances"`
	PublicScores      bool `json:"public_scores"`
	GalaxyClumping    bool `json:"galaxy_clumping"`

	// Comma separated "race,skill" pairs, e.g. "0,4,3,2"
	AIPlayers string `json:"ai_players" gorm:"type:varchar(64)"`

	PercentPlanets         *int `json:"percent_planets,omitempty"`
	TechLevel              *int `json:"tech_level,omitempty"`
	TechFields             *int `json:"tech_fields,omitempty"`
	Score                  *int `json:"score,omitempty"`
	ExceedsNearestScore    *int `json:"exceeds_nearest_score,omitempty"`
	Production             *int `json:"production,omitempty"`
	CapitalShips           *int `json:"capital_ships,omitempty"`
	HighestScoreAfterYears *int `json:"highest_score_after_years,omitempty"`

	NumCriteria   int `json:"num_criteria"`
	MinTurnsToWin int `json:"min_turns_to_win"`

	// Last text handed to the engine
	FileContents string `json:"file_contents" gorm:"type:text"`
}

// DefaultGameOptions returns the options a freshly created game starts with.
func DefaultGameOptions() GameOptions {
	return GameOptions{
		UniverseSize:     UniverseSmall,
		UniverseDensity:  DensityNormal,
		StartingDistance: DistanceModerate,
		RandomEvents:     true,
		PublicScores:     true,
		NumCriteria:      1,
		MinTurnsToWin:    50,
	}
}
