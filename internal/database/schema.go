package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RequestPending  string = "PENDING"
	RequestResolved string = "RESOLVED"
)

// PromptRequest is the correlation record for one oracle request. The id is
// assigned by the oracle at registration time; the broker never generates one.
// Rows are append-only: submission inserts, resolution updates, nothing deletes.
type PromptRequest struct {
	Id uint64 `gorm:"primaryKey;autoIncrement:false"`

	Sender  string `gorm:"size:128;not null"`
	ModelId uint64 `gorm:"not null"`

	Input  []byte `gorm:"not null"`
	Output []byte

	// Captured at submission time, never re-read when the callback arrives.
	GasLimit     uint64
	CallbackData []byte

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	ResolutionTime sql.NullTime
}

// ResultCacheEntry holds the most recent output for a (model, input) pair,
// independent of which request produced it. Inputs are keyed by digest since
// payloads can exceed index size limits; the raw input is kept alongside.
type ResultCacheEntry struct {
	ModelId     uint64 `gorm:"primaryKey;autoIncrement:false"`
	InputDigest string `gorm:"primaryKey;size:64"`

	Input  []byte `gorm:"not null"`
	Output []byte

	UpdatedTime time.Time
}

// GasPolicy maps a model id to the callback gas budget used when registering
// requests for that model. Written only through the admin endpoint.
type GasPolicy struct {
	ModelId  uint64 `gorm:"primaryKey;autoIncrement:false"`
	GasLimit uint64 `gorm:"not null"`

	UpdatedTime time.Time
}

// CallbackRejection records a callback that failed authentication. These rows
// are the durable trail for potential forged-callback attempts.
type CallbackRejection struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	RequestId      uint64
	CallerIdentity string `gorm:"size:128"`
	Detail         datatypes.JSON
	Timestamp      time.Time
}
