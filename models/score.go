package models

// ScoreSection identifies one column of the engine's score sheet.
type ScoreSection int

const (
	SectionRank ScoreSection = iota
	SectionScore
	SectionResources
	SectionTechLevels
	SectionCapitalShips
	SectionEscortShips
	SectionUnarmedShips
	SectionStarbases
	SectionPlanets
)

// ScoreSections lists every section in score sheet order.
var ScoreSections = []ScoreSection{
	SectionRank,
	SectionScore,
	SectionResources,
	SectionTechLevels,
	SectionCapitalShips,
	SectionEscortShips,
	SectionUnarmedShips,
	SectionStarbases,
	SectionPlanets,
}

var sectionNames = map[ScoreSection]string{
	SectionRank:         "Rank",
	SectionScore:        "Score",
	SectionResources:    "Resources",
	SectionTechLevels:   "Tech Levels",
	SectionCapitalShips: "Capital Ships",
	SectionEscortShips:  "Escort Ships",
	SectionUnarmedShips: "Unarmed Ships",
	SectionStarbases:    "Starbases",
	SectionPlanets:      "Planets",
}

var sectionTokens = map[ScoreSection]string{
	SectionRank:         "rank",
	SectionScore:        "score",
	SectionResources:    "resources",
	SectionTechLevels:   "techlevels",
	SectionCapitalShips: "capships",
	SectionEscortShips:  "escortships",
	SectionUnarmedShips: "unarmedships",
	SectionStarbases:    "starbases",
	SectionPlanets:      "planets",
}

func (s ScoreSection) String() string {
	if name, ok := sectionNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Token is the short identifier used in URLs and JSON.
func (s ScoreSection) Token() string {
	return sectionTokens[s]
}

type Score struct {
	ID      uint         `json:"id" gorm:"primaryKey"`
	TurnID  uint         `json:"turn_id" gorm:"not null;uniqueIndex:idx_score_cell"`
	RaceID  uint         `json:"race_id" gorm:"not null;uniqueIndex:idx_score_cell"`
	Section ScoreSection `json:"section" gorm:"not null;uniqueIndex:idx_score_cell"`
	Value   int          `json:"value" gorm:"not null"`
}
