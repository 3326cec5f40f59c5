package postgres

import (
	"time"

	"github.com/mcoot/stakegame/internal/model"
)

// Each table keeps the full entity as a JSONB document plus the columns
// that listings and sweeps filter on.

type participantRow struct {
	ID        string            `gorm:"primaryKey"`
	Data      model.Participant `gorm:"serializer:json;type:jsonb;not null"`
	CreatedAt time.Time
}

func (participantRow) TableName() string { return "participants" }

type roomRow struct {
	ID        string     `gorm:"primaryKey"`
	GameKind  string     `gorm:"index;not null"`
	Stake     int64      `gorm:"index;not null"`
	Status    string     `gorm:"index;not null"`
	Privacy   string     `gorm:"not null"`
	Data      model.Room `gorm:"serializer:json;type:jsonb;not null"`
	CreatedAt time.Time  `gorm:"index"`
	UpdatedAt time.Time
}

func (roomRow) TableName() string { return "rooms" }

func newRoomRow(room *model.Room) *roomRow {
	row := &roomRow{ID: string(room.ID), CreatedAt: room.CreatedAt}
	row.sync(room)
	return row
}

func (r *roomRow) sync(room *model.Room) {
	r.GameKind = string(room.GameKind)
	r.Stake = room.Stake.Nano()
	r.Status = string(room.Status)
	r.Privacy = string(room.Privacy)
	r.UpdatedAt = room.UpdatedAt
	r.Data = *room
}

type matchRow struct {
	ID             string      `gorm:"primaryKey"`
	RoomID         string      `gorm:"index;not null"`
	Status         string      `gorm:"index;not null"`
	CommitDeadline *time.Time  `gorm:"index"`
	RevealDeadline *time.Time  `gorm:"index"`
	Settled        bool        `gorm:"index;not null"`
	Data           model.Match `gorm:"serializer:json;type:jsonb;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (matchRow) TableName() string { return "matches" }

func newMatchRow(match *model.Match) *matchRow {
	row := &matchRow{ID: string(match.ID), RoomID: string(match.RoomID), CreatedAt: match.CreatedAt}
	row.sync(match)
	return row
}

func (r *matchRow) sync(match *model.Match) {
	r.Status = string(match.Status)
	r.CommitDeadline = match.CommitDeadline
	r.RevealDeadline = match.RevealDeadline
	r.Settled = match.Settled
	r.UpdatedAt = match.UpdatedAt
	r.Data = *match
}

type escrowRow struct {
	MatchID   string             `gorm:"primaryKey"`
	ID        string             `gorm:"uniqueIndex;not null"`
	State     string             `gorm:"index;not null"`
	Data      model.EscrowRecord `gorm:"serializer:json;type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (escrowRow) TableName() string { return "escrows" }

func newEscrowRow(record *model.EscrowRecord) *escrowRow {
	row := &escrowRow{MatchID: string(record.MatchID), ID: record.ID, CreatedAt: record.CreatedAt}
	row.sync(record)
	return row
}

func (r *escrowRow) sync(record *model.EscrowRecord) {
	r.State = string(record.State)
	r.UpdatedAt = record.UpdatedAt
	r.Data = *record
}
