package broker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"oracle-broker/internal/database"
	"oracle-broker/internal/messaging"
	"oracle-broker/internal/oracle"
	"oracle-broker/pkg/models"

	"gorm.io/gorm"
)

const maxConcurrentResolutions = 10000

// Config fixes the identities and the model the broker serves. The oracle
// identity is the trust anchor for callback authentication and cannot change
// after construction.
type Config struct {
	ModelId        uint64
	CallbackTarget string
	OracleIdentity string
	AdminIdentity  string
}

// Broker owns the correlation store and result cache. Submission and
// resolution are the only two paths that mutate a request record; correlation
// between them happens purely through the oracle-assigned id.
type Broker struct {
	db        *gorm.DB
	oracle    oracle.Client
	publisher messaging.Publisher
	builder   PayloadBuilder

	auth  *CallbackAuthenticator
	admin *AdminGate

	modelId        uint64
	callbackTarget string

	locks MutexMap
}

func NewBroker(db *gorm.DB, oracleClient oracle.Client, publisher messaging.Publisher, builder PayloadBuilder, cfg Config) *Broker {
	return &Broker{
		db:             db,
		oracle:         oracleClient,
		publisher:      publisher,
		builder:        builder,
		auth:           NewCallbackAuthenticator(cfg.OracleIdentity),
		admin:          NewAdminGate(cfg.AdminIdentity),
		modelId:        cfg.ModelId,
		callbackTarget: cfg.CallbackTarget,
		locks:          NewMutexMap(maxConcurrentResolutions),
	}
}

type SubmitParams struct {
	Prompt       string
	Sender       string
	Payment      uint64
	CallbackData []byte
}

// Submit registers a request with the oracle and creates the Pending record
// under the id the oracle assigned. The payment is forwarded untouched; the
// oracle enforces the fee. If registration fails nothing is persisted.
func (b *Broker) Submit(ctx context.Context, params SubmitParams) (uint64, error) {
	var policy database.GasPolicy
	if err := b.db.WithContext(ctx).First(&policy, "model_id = ?", b.modelId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: model %d", ErrConfigurationMissing, b.modelId)
		}
		slog.Error("error reading gas policy", "model_id", b.modelId, "error", err)
		return 0, fmt.Errorf("error reading gas policy: %w", err)
	}

	input := b.builder.Build(params.Prompt)

	requestId, err := b.oracle.Register(ctx, oracle.Registration{
		ModelId:        b.modelId,
		Input:          input,
		CallbackTarget: b.callbackTarget,
		GasLimit:       policy.GasLimit,
		CallbackData:   params.CallbackData,
		Payment:        params.Payment,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	var existing int64
	if err := b.db.WithContext(ctx).Model(&database.PromptRequest{}).Where("id = ?", requestId).Count(&existing).Error; err != nil {
		slog.Error("error checking for existing request", "request_id", requestId, "error", err)
		return 0, fmt.Errorf("error checking for existing request: %w", err)
	}
	if existing > 0 {
		slog.Error("oracle assigned an id that already has a record", "request_id", requestId)
		return 0, fmt.Errorf("%w: id %d", ErrDuplicateRequestId, requestId)
	}

	record := database.PromptRequest{
		Id:           requestId,
		Sender:       params.Sender,
		ModelId:      b.modelId,
		Input:        input,
		GasLimit:     policy.GasLimit,
		CallbackData: params.CallbackData,
		Status:       database.RequestPending,
		CreationTime: time.Now().UTC(),
	}
	if err := b.db.WithContext(ctx).Create(&record).Error; err != nil {
		slog.Error("error creating request record", "request_id", requestId, "error", err)
		return 0, fmt.Errorf("error creating request record: %w", err)
	}

	event := models.SubmissionEvent{
		RequestId: requestId,
		Sender:    params.Sender,
		ModelId:   b.modelId,
		Prompt:    params.Prompt,
	}
	if err := b.publisher.PublishSubmissionEvent(ctx, event); err != nil {
		// The record exists and funds have moved; losing the event must not
		// unwind either. Consumers reconcile from the store.
		slog.Error("error publishing submission event", "request_id", requestId, "error", err)
	}

	slog.Info("submitted oracle request", "request_id", requestId, "sender", params.Sender, "model_id", b.modelId)
	return requestId, nil
}

// Resolve applies a validated oracle callback: authenticates the caller,
// transitions the record to Resolved, and overwrites the result cache for its
// (model, input) pair. Resolutions of the same id are serialized; a repeat
// resolution overwrites the earlier output.
func (b *Broker) Resolve(ctx context.Context, requestId uint64, output, callbackData []byte, caller string) error {
	if err := b.auth.Authenticate(caller); err != nil {
		slog.Warn("rejected oracle callback", "request_id", requestId, "caller", caller)
		if auditErr := database.SaveCallbackRejection(ctx, b.db, requestId, caller, b.auth.OracleIdentity()); auditErr != nil {
			slog.Error("error recording callback rejection", "request_id", requestId, "error", auditErr)
		}
		return err
	}

	if err := b.locks.Lock(requestId); err != nil {
		return fmt.Errorf("unable to lock request %d: %w", requestId, err)
	}
	defer func() {
		if err := b.locks.Unlock(requestId); err != nil {
			slog.Error("error releasing request lock", "request_id", requestId, "error", err)
		}
	}()

	var record database.PromptRequest
	if err := b.db.WithContext(ctx).First(&record, "id = ?", requestId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: id %d", ErrUnknownRequest, requestId)
		}
		slog.Error("error loading request record", "request_id", requestId, "error", err)
		return fmt.Errorf("error loading request record: %w", err)
	}
	if record.Sender == "" {
		return fmt.Errorf("%w: id %d has no sender", ErrUnknownRequest, requestId)
	}

	err := b.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		updates := map[string]any{
			"output":          output,
			"status":          database.RequestResolved,
			"resolution_time": sql.NullTime{Time: time.Now().UTC(), Valid: true},
		}
		if err := txn.Model(&database.PromptRequest{Id: requestId}).Updates(updates).Error; err != nil {
			return fmt.Errorf("error updating request record: %w", err)
		}

		return database.UpsertResultCache(ctx, txn, record.ModelId, database.InputDigest(record.Input), record.Input, output)
	})
	if err != nil {
		slog.Error("error resolving request", "request_id", requestId, "error", err)
		return err
	}

	event := models.ResolutionEvent{
		RequestId:    requestId,
		ModelId:      record.ModelId,
		Input:        record.Input,
		Output:       output,
		CallbackData: callbackData,
	}
	if err := b.publisher.PublishResolutionEvent(ctx, event); err != nil {
		slog.Error("error publishing resolution event", "request_id", requestId, "error", err)
	}

	slog.Info("resolved oracle request", "request_id", requestId, "model_id", record.ModelId)
	return nil
}

// GetRequest returns the correlation record for an id.
func (b *Broker) GetRequest(ctx context.Context, requestId uint64) (database.PromptRequest, error) {
	var record database.PromptRequest
	if err := b.db.WithContext(ctx).First(&record, "id = ?", requestId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.PromptRequest{}, fmt.Errorf("%w: id %d", ErrUnknownRequest, requestId)
		}
		slog.Error("error loading request record", "request_id", requestId, "error", err)
		return database.PromptRequest{}, fmt.Errorf("error loading request record: %w", err)
	}
	return record, nil
}

// GetResult reads the cached output for (modelId, prompt). A missing entry and
// an entry resolved with empty output both return empty bytes; callers cannot
// treat emptiness as an error signal.
func (b *Broker) GetResult(ctx context.Context, modelId uint64, prompt string) ([]byte, error) {
	input := b.builder.Build(prompt)

	var entry database.ResultCacheEntry
	err := b.db.WithContext(ctx).
		First(&entry, "model_id = ? AND input_digest = ?", modelId, database.InputDigest(input)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("error reading result cache", "model_id", modelId, "error", err)
		return nil, fmt.Errorf("error reading result cache: %w", err)
	}

	return entry.Output, nil
}

// EstimateFee passes the fee query through to the oracle. No side effects.
func (b *Broker) EstimateFee(ctx context.Context, modelId, gasLimit uint64) (uint64, error) {
	fee, err := b.oracle.EstimateFee(ctx, modelId, gasLimit)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return fee, nil
}

// SetGasBudget overwrites the gas policy for a model. Only the administrator
// may call this; Pending requests keep the budget captured at submission time.
func (b *Broker) SetGasBudget(ctx context.Context, caller string, modelId, gasLimit uint64) error {
	if err := b.admin.Authorize(caller); err != nil {
		slog.Warn("rejected gas budget change", "caller", caller, "model_id", modelId)
		return err
	}

	if err := database.UpsertGasPolicy(ctx, b.db, modelId, gasLimit); err != nil {
		slog.Error("error updating gas policy", "model_id", modelId, "error", err)
		return fmt.Errorf("error updating gas policy: %w", err)
	}

	slog.Info("updated gas budget", "model_id", modelId, "gas_limit", gasLimit)
	return nil
}
