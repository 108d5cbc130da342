package models

import (
	"time"
)

// StarsFile type tags, matching the engine's file extensions.
const (
	FileTypeRace    = "r"
	FileTypeMap     = "xy"
	FileTypeState   = "m"
	FileTypeOrders  = "x"
	FileTypeHistory = "h"
	FileTypeHost    = "hst"
)

var fileTypeNames = map[string]string{
	FileTypeRace:    "race",
	FileTypeMap:     "map",
	FileTypeState:   "state",
	FileTypeOrders:  "orders",
	FileTypeHistory: "history",
	FileTypeHost:    "host",
}

// FileTypeName returns the display name of a file type tag.
func FileTypeName(t string) string {
	if name, ok := fileTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// StarsFile is an immutable engine file. A new version of a file is a new
// row; owners move their pointer.
type StarsFile struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Type         string    `json:"type" gorm:"type:varchar(3);not null"`
	UploadUserID *string   `json:"upload_user_id,omitempty" gorm:"index"`
	Timestamp    time.Time `json:"timestamp" gorm:"not null"`

	// 📁 Blob location and integrity
	StorageKey string `json:"-" gorm:"not null"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest" gorm:"type:varchar(64);index"` // blake3, hex
}
