package models

import "encoding/json"

// LevelDefinition is static level content from the levels collection (read-only for the engine).
type LevelDefinition struct {
	ID         int             `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Title      string          `gorm:"not null" json:"title"`
	Slug       string          `gorm:"type:varchar(160);index" json:"slug"`
	Reward     int64           `gorm:"not null" json:"reward"`
	EnergyCost int             `json:"energy_cost"`
	Payload    json.RawMessage `gorm:"type:jsonb;serializer:json" json:"payload,omitempty"` // board definition, opaque to the server

	Timestamps
}

func (LevelDefinition) TableName() string { return "levels" }
