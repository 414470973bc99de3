package migration_0

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Frozen copies of the initial schema. These must not change when the live
// schema in the database package evolves; later migrations build on this state.

type PromptRequest struct {
	Id uint64 `gorm:"primaryKey;autoIncrement:false"`

	Sender  string `gorm:"size:128;not null"`
	ModelId uint64 `gorm:"not null"`

	Input  []byte `gorm:"not null"`
	Output []byte

	GasLimit     uint64
	CallbackData []byte

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	ResolutionTime sql.NullTime
}

type ResultCacheEntry struct {
	ModelId     uint64 `gorm:"primaryKey;autoIncrement:false"`
	InputDigest string `gorm:"primaryKey;size:64"`

	Input  []byte `gorm:"not null"`
	Output []byte

	UpdatedTime time.Time
}

type GasPolicy struct {
	ModelId  uint64 `gorm:"primaryKey;autoIncrement:false"`
	GasLimit uint64 `gorm:"not null"`

	UpdatedTime time.Time
}

type CallbackRejection struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	RequestId      uint64
	CallerIdentity string `gorm:"size:128"`
	Detail         datatypes.JSON
	Timestamp      time.Time
}

func Migration(txn *gorm.DB) error {
	return txn.AutoMigrate(
		&PromptRequest{}, &ResultCacheEntry{}, &GasPolicy{}, &CallbackRejection{},
	)
}

func Rollback(txn *gorm.DB) error {
	return txn.Migrator().DropTable(
		&PromptRequest{}, &ResultCacheEntry{}, &GasPolicy{}, &CallbackRejection{},
	)
}
