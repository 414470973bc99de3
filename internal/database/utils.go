package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InputDigest keys the result cache. Payloads can be arbitrarily large, so
// entries are addressed by digest with the raw input stored alongside.
func InputDigest(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

// UpsertResultCache overwrites the cache entry for (modelId, digest)
// unconditionally. Last writer wins by arrival order of resolutions.
func UpsertResultCache(ctx context.Context, txn *gorm.DB, modelId uint64, digest string, input, output []byte) error {
	entry := ResultCacheEntry{
		ModelId:     modelId,
		InputDigest: digest,
		Input:       input,
		Output:      output,
		UpdatedTime: time.Now().UTC(),
	}

	return txn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "model_id"}, {Name: "input_digest"}},
		DoUpdates: clause.AssignmentColumns([]string{"input", "output", "updated_time"}),
	}).Create(&entry).Error
}

// UpsertGasPolicy overwrites the gas budget for a model, creating the entry
// if it does not exist.
func UpsertGasPolicy(ctx context.Context, db *gorm.DB, modelId, gasLimit uint64) error {
	policy := GasPolicy{
		ModelId:     modelId,
		GasLimit:    gasLimit,
		UpdatedTime: time.Now().UTC(),
	}

	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "model_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"gas_limit", "updated_time"}),
	}).Create(&policy).Error
}

// SeedGasPolicy creates a gas budget entry for the model if none exists yet.
// Existing entries are left alone so startup never clobbers an admin override.
func SeedGasPolicy(ctx context.Context, db *gorm.DB, modelId, gasLimit uint64) error {
	policy := GasPolicy{ModelId: modelId}
	return db.WithContext(ctx).
		Where(GasPolicy{ModelId: modelId}).
		Attrs(GasPolicy{ModelId: modelId, GasLimit: gasLimit, UpdatedTime: time.Now().UTC()}).
		FirstOrCreate(&policy).Error
}

// SaveCallbackRejection persists a failed callback authentication. Errors are
// logged by the caller; a failed audit write must not mask the Unauthorized result.
func SaveCallbackRejection(ctx context.Context, db *gorm.DB, requestId uint64, caller, expected string) error {
	detail, err := json.Marshal(map[string]string{"expected": expected, "actual": caller})
	if err != nil {
		return err
	}

	rejection := CallbackRejection{
		Id:             uuid.New(),
		RequestId:      requestId,
		CallerIdentity: caller,
		Detail:         detail,
		Timestamp:      time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(&rejection).Error
}
