package models

import (
	"time"
)

// Turn is one generated game year. Rows are never updated after creation.
type Turn struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	GameID      uint      `json:"game_id" gorm:"not null;uniqueIndex:idx_turn_year"`
	Year        int       `json:"year" gorm:"not null;uniqueIndex:idx_turn_year"`
	HostFileID  string    `json:"host_file_id" gorm:"not null"`
	GeneratedAt time.Time `json:"generated_at" gorm:"autoCreateTime;index"`

	RaceTurns []RaceTurn `json:"race_turns,omitempty" gorm:"foreignKey:TurnID;constraint:OnDelete:CASCADE"`
	Scores    []Score    `json:"scores,omitempty" gorm:"foreignKey:TurnID;constraint:OnDelete:CASCADE"`
}

// RaceTurn links a race to the files it received and submitted for a turn.
type RaceTurn struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	RaceID uint `json:"race_id" gorm:"not null;uniqueIndex:idx_race_turn"`
	TurnID uint `json:"turn_id" gorm:"not null;uniqueIndex:idx_race_turn"`

	StateFileID          string  `json:"state_file_id" gorm:"not null"` // .m file
	HistoryFileID        *string `json:"history_file_id,omitempty"`     // .h file
	OrdersFileID         *string `json:"orders_file_id,omitempty"`      // latest .x upload
	OfficialOrdersFileID *string `json:"official_orders_file_id,omitempty"`

	Uploads int `json:"uploads" gorm:"default:0"`

	Race *Race `json:"race,omitempty" gorm:"foreignKey:RaceID"`
}
