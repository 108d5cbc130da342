// models/game.go
package models

import (
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

const (
	GameStateSetup    = "setup"
	GameStateActive   = "active"
	GameStatePaused   = "paused"
	GameStateFinished = "finished"
)

// BaseYear is the in-game year of turn zero.
const BaseYear = 2400

type Game struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"not null"`
	Slug string `json:"slug" gorm:"uniqueIndex;not null"`

	// 🎛️ Lifecycle state
	State string `json:"state" gorm:"type:varchar(16);default:'setup'"` // setup | active | paused | finished

	// 🗺️ Map file produced at activation
	MapFileID *string `json:"map_file_id,omitempty"`

	Options GameOptions `json:"options" gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`

	// ⏱️ Automatic generation (0 = host triggers turns manually)
	TurnInterval     int        `json:"turn_interval_minutes" gorm:"default:0"`
	NextGenerationAt *time.Time `json:"next_generation_at,omitempty" gorm:"index"`

	Races []Race `json:"races,omitempty" gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
	Turns []Turn `json:"turns,omitempty" gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`

	Timestamps
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate fills in the slug and initial state.
func (g *Game) BeforeCreate(tx *gorm.DB) error {
	if g.Slug == "" {
		g.Slug = slug.Make(g.Name)
	}
	if g.State == "" {
		g.State = GameStateSetup
	}
	return nil
}

// MapSlug is the slug cut to the engine's 8 character file name limit.
func (g *Game) MapSlug() string {
	s := g.Slug
	if s == "" {
		s = slug.Make(g.Name)
	}
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}

// CanActivate reports whether the game may be started by the engine.
func (g *Game) CanActivate() bool {
	return g.State == GameStateSetup
}

// CanGenerate reports whether a new turn may be generated.
func (g *Game) CanGenerate() bool {
	return g.State == GameStateActive || g.State == GameStatePaused
}

// Race is a player slot in a game, human or AI.
type Race struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	GameID     uint   `json:"game_id" gorm:"not null;uniqueIndex:idx_race_player"`
	Name       string `json:"name" gorm:"type:varchar(15);not null"`
	PluralName string `json:"plural_name" gorm:"type:varchar(15);not null"`
	Slug       string `json:"slug" gorm:"type:varchar(16)"`

	// nil until the game is activated, and for races that never uploaded
	PlayerNumber *int `json:"player_number" gorm:"uniqueIndex:idx_race_player"`
	IsAI         bool `json:"is_ai" gorm:"default:false"`

	// 📁 Latest upload vs. the copy handed to the engine
	RaceFileID         *string `json:"race_file_id,omitempty"`
	OfficialRaceFileID *string `json:"official_race_file_id,omitempty"`

	Timestamps
}

func (r *Race) BeforeCreate(tx *gorm.DB) error {
	if r.Slug == "" {
		r.Slug = slug.Make(r.Name)
		if len(r.Slug) > 16 {
			r.Slug = r.Slug[:16]
		}
	}
	return nil
}

// Number is the 1-based player number shown to players and used in file names.
func (r *Race) Number() int {
	if r.PlayerNumber == nil {
		return 0
	}
	return *r.PlayerNumber + 1
}
