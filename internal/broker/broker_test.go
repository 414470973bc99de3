package broker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"oracle-broker/internal/broker"
	"oracle-broker/internal/database"
	"oracle-broker/internal/messaging"
	"oracle-broker/internal/oracle"
	"oracle-broker/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testModelId    = uint64(11)
	testGasLimit   = uint64(5_000_000)
	oracleIdentity = "oracle.example.com"
	adminIdentity  = "admin@broker"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

type fakeOracle struct {
	fee         uint64
	feeErr      error
	nextId      uint64
	registerErr error

	registrations []oracle.Registration
}

func (f *fakeOracle) EstimateFee(ctx context.Context, modelId, gasLimit uint64) (uint64, error) {
	if f.feeErr != nil {
		return 0, f.feeErr
	}
	return f.fee, nil
}

func (f *fakeOracle) Register(ctx context.Context, reg oracle.Registration) (uint64, error) {
	if f.registerErr != nil {
		return 0, f.registerErr
	}
	f.registrations = append(f.registrations, reg)
	f.nextId++
	return f.nextId, nil
}

func newTestBroker(t *testing.T, db *gorm.DB) (*broker.Broker, *fakeOracle, *messaging.InMemoryQueue) {
	fake := &fakeOracle{fee: 100}
	queue := messaging.NewInMemoryQueue()

	b := broker.NewBroker(db, fake, queue, broker.RawPayloadBuilder{}, broker.Config{
		ModelId:        testModelId,
		CallbackTarget: "broker.example.com",
		OracleIdentity: oracleIdentity,
		AdminIdentity:  adminIdentity,
	})
	return b, fake, queue
}

func nextEvent[T any](t *testing.T, queue *messaging.InMemoryQueue, expectedQueue string) T {
	var payload T
	select {
	case task := <-queue.Tasks():
		require.Equal(t, expectedQueue, task.Type())
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
	return payload
}

func seedPolicy(modelId, gasLimit uint64) *database.GasPolicy {
	return &database.GasPolicy{ModelId: modelId, GasLimit: gasLimit, UpdatedTime: time.Now().UTC()}
}

func TestSubmitCreatesPendingRecord(t *testing.T) {
	db := createDB(t, seedPolicy(testModelId, testGasLimit))
	b, fake, queue := newTestBroker(t, db)

	requestId, err := b.Submit(context.Background(), broker.SubmitParams{
		Prompt:       "Hello World",
		Sender:       "alice",
		Payment:      250,
		CallbackData: []byte("cb"),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), requestId)

	var record database.PromptRequest
	require.NoError(t, db.First(&record, "id = ?", requestId).Error)
	assert.Equal(t, "alice", record.Sender)
	assert.Equal(t, testModelId, record.ModelId)
	assert.Equal(t, []byte("Hello World"), record.Input)
	assert.Empty(t, record.Output)
	assert.Equal(t, database.RequestPending, record.Status)
	assert.Equal(t, testGasLimit, record.GasLimit)

	require.Len(t, fake.registrations, 1)
	reg := fake.registrations[0]
	assert.Equal(t, testModelId, reg.ModelId)
	assert.Equal(t, []byte("Hello World"), reg.Input)
	assert.Equal(t, testGasLimit, reg.GasLimit)
	assert.Equal(t, uint64(250), reg.Payment)
	assert.Equal(t, "broker.example.com", reg.CallbackTarget)

	event := nextEvent[models.SubmissionEvent](t, queue, messaging.SubmissionQueue)
	assert.Equal(t, requestId, event.RequestId)
	assert.Equal(t, "alice", event.Sender)
	assert.Equal(t, testModelId, event.ModelId)
	assert.Equal(t, "Hello World", event.Prompt)
}

func TestSubmitFailsWithoutGasBudget(t *testing.T) {
	db := createDB(t)
	b, fake, _ := newTestBroker(t, db)

	_, err := b.Submit(context.Background(), broker.SubmitParams{Prompt: "hi", Sender: "alice"})
	assert.ErrorIs(t, err, broker.ErrConfigurationMissing)

	assert.Empty(t, fake.registrations)

	var count int64
	require.NoError(t, db.Model(&database.PromptRequest{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubmitFailsWhenOracleUnavailable(t *testing.T) {
	db := createDB(t, seedPolicy(testModelId, testGasLimit))
	b, fake, _ := newTestBroker(t, db)
	fake.registerErr = errors.New("connection refused")

	_, err := b.Submit(context.Background(), broker.SubmitParams{Prompt: "hi", Sender: "alice"})
	assert.ErrorIs(t, err, broker.ErrUpstreamUnavailable)

	var count int64
	require.NoError(t, db.Model(&database.PromptRequest{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubmitRejectsDuplicateRequestId(t *testing.T) {
	db := createDB(t, seedPolicy(testModelId, testGasLimit), &database.PromptRequest{
		Id:           1,
		Sender:       "bob",
		ModelId:      testModelId,
		Input:        []byte("earlier"),
		Status:       database.RequestPending,
		CreationTime: time.Now().UTC(),
	})
	b, _, _ := newTestBroker(t, db)

	// The fake oracle hands out id 1, which already has a record.
	_, err := b.Submit(context.Background(), broker.SubmitParams{Prompt: "hi", Sender: "alice"})
	assert.ErrorIs(t, err, broker.ErrDuplicateRequestId)

	var record database.PromptRequest
	require.NoError(t, db.First(&record, "id = ?", 1).Error)
	assert.Equal(t, "bob", record.Sender)
	assert.Equal(t, []byte("earlier"), record.Input)
}

func TestResolveRequiresOracleIdentity(t *testing.T) {
	db := createDB(t, seedPolicy(testModelId, testGasLimit))
	b, _, queue := newTestBroker(t, db)

	requestId, err := b.Submit(context.Background(), broker.SubmitParams{Prompt: "Hello World", Sender: "alice"})
	require.NoError(t, err)
	nextEvent[models.SubmissionEvent](t, queue, messaging.SubmissionQueue)

	err = b.Resolve(context.Background(), requestId, []byte("42"), nil, "mallory")
	assert.ErrorIs(t, err, broker.ErrUnauthorized)
	assert.ErrorContains(t, err, oracleIdentity)
	assert.ErrorContains(t, err, "mallory")

	// Record is untouched and the cache stays empty.
	var record database.PromptRequest
	require.NoError(t, db.First(&record, "id = ?", requestId).Error)
	assert.Equal(t, database.RequestPending, record.Status)
	assert.Empty(t, record.Output)

	output, err := b.GetResult(context.Background(), testModelId, "Hello World")
	require.NoError(t, err)
	assert.Empty(t, output)

	// The rejection is recorded for the audit trail.
	var rejections []database.CallbackRejection
	require.NoError(t, db.Find(&rejections).Error)
	require.Len(t, rejections, 1)
	assert.Equal(t, requestId, rejections[0].RequestId)
	assert.Equal(t, "mallory", rejections[0].CallerIdentity)
}

func TestResolveUnknownRequest(t *testing.T) {
	db := createDB(t)
	b, _, _ := newTestBroker(t, db)

	err := b.Resolve(context.Background(), 99, []byte("42"), nil, oracleIdentity)
	assert.ErrorIs(t, err, broker.ErrUnknownRequest)

	var count int64
	require.NoError(t, db.Model(&database.PromptRequest{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestResolveUpdatesRecordAndCache(t *testing.T) {
	db := createDB(t, seedPolicy(testModelId, testGasLimit))
	b, _, queue := newTestBroker(t, db)

	requestId, err := b.Submit(context.Background(), broker.SubmitParams{
		Prompt:       "Hello World",
		Sender:       "alice",
		CallbackData: []byte("cb"),
	})
	require.NoError(t, err)
	nextEvent[models.SubmissionEvent](t, queue, messaging.SubmissionQueue)

	output, err := b.GetResult(context.Background(), testModelId, "Hello World")
	require.NoError(t, err)
	assert.Empty(t, output)

	require.NoError(t, b.Resolve(context.Background(), requestId, []byte("42"), []byte("cb"), oracleIdentity))

	var record database.PromptRequest
	require.NoError(t, db.First(&record, "id = ?", requestId).Error)
	assert.Equal(t, database.RequestResolved, record.Status)
	assert.Equal(t, []byte("42"), record.Output)
	assert.True(t, record.ResolutionTime.Valid)

	output, err = b.GetResult(context.Background(), testModelId, "Hello World")
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), output)

	event := nextEvent[models.ResolutionEvent](t, queue, messaging.ResolutionQueue)
	assert.Equal(t, requestId, event.RequestId)
	assert.Equal(t, testModelId, event.ModelId)
	assert.Equal(t, []byte("Hello World"), event.Input)
	assert.Equal(t, []byte("42"), event.Output)
	assert.Equal(t, []byte("cb"), event.CallbackData)
}

func TestReResolutionOverwrites(t *testing.T) {
	db := createDB(t, seedPolicy(testModelId, testGasLimit))
	b, _, queue := newTestBroker(t, db)

	requestId, err := b.Submit(context.Background(), broker.SubmitParams{Prompt: "Hello World", Sender: "alice"})
	require.NoError(t, err)
	nextEvent[models.SubmissionEvent](t, queue, messaging.SubmissionQueue)

	require.NoError(t, b.Resolve(context.Background(), requestId, []byte("first"), nil, oracleIdentity))
	require.NoError(t, b.Resolve(context.Background(), requestId, []byte("second"), nil, oracleIdentity))

	var record database.PromptRequest
	require.NoError(t, db.First(&record, "id = ?", requestId).Error)
	assert.Equal(t, []byte("second"), record.Output)

	output, err := b.GetResult(context.Background(), testModelId, "Hello World")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), output)
}

func TestCacheLastWriteWinsAcrossRequests(t *testing.T) {
	db := createDB(t, seedPolicy(testModelId, testGasLimit))
	b, _, queue := newTestBroker(t, db)

	first, err := b.Submit(context.Background(), broker.SubmitParams{Prompt: "Hello World", Sender: "alice"})
	require.NoError(t, err)
	second, err := b.Submit(context.Background(), broker.SubmitParams{Prompt: "Hello World", Sender: "bob"})
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	nextEvent[models.SubmissionEvent](t, queue, messaging.SubmissionQueue)
	nextEvent[models.SubmissionEvent](t, queue, messaging.SubmissionQueue)

	// Resolutions arrive in the opposite order of submission; the cache tracks
	// arrival order, not submission order.
	require.NoError(t, b.Resolve(context.Background(), second, []byte("from second"), nil, oracleIdentity))
	require.NoError(t, b.Resolve(context.Background(), first, []byte("from first"), nil, oracleIdentity))

	output, err := b.GetResult(context.Background(), testModelId, "Hello World")
	require.NoError(t, err)
	assert.Equal(t, []byte("from first"), output)
}

func TestGasBudgetChangeDoesNotAffectPendingRequests(t *testing.T) {
	db := createDB(t, seedPolicy(testModelId, testGasLimit))
	b, fake, queue := newTestBroker(t, db)

	requestId, err := b.Submit(context.Background(), broker.SubmitParams{Prompt: "Hello World", Sender: "alice"})
	require.NoError(t, err)
	nextEvent[models.SubmissionEvent](t, queue, messaging.SubmissionQueue)

	require.NoError(t, b.SetGasBudget(context.Background(), adminIdentity, testModelId, 1_000_000))

	// The pending record keeps the budget captured at submission time.
	var record database.PromptRequest
	require.NoError(t, db.First(&record, "id = ?", requestId).Error)
	assert.Equal(t, testGasLimit, record.GasLimit)

	// A new submission picks up the new budget.
	_, err = b.Submit(context.Background(), broker.SubmitParams{Prompt: "again", Sender: "alice"})
	require.NoError(t, err)
	require.Len(t, fake.registrations, 2)
	assert.Equal(t, uint64(1_000_000), fake.registrations[1].GasLimit)
}

func TestSetGasBudgetRequiresAdmin(t *testing.T) {
	db := createDB(t, seedPolicy(testModelId, testGasLimit))
	b, _, _ := newTestBroker(t, db)

	err := b.SetGasBudget(context.Background(), "alice", testModelId, 1_000_000)
	assert.ErrorIs(t, err, broker.ErrUnauthorized)

	var policy database.GasPolicy
	require.NoError(t, db.First(&policy, "model_id = ?", testModelId).Error)
	assert.Equal(t, testGasLimit, policy.GasLimit)
}

func TestEstimateFeeHasNoSideEffects(t *testing.T) {
	db := createDB(t)
	b, fake, _ := newTestBroker(t, db)
	fake.fee = 777

	for i := 0; i < 3; i++ {
		fee, err := b.EstimateFee(context.Background(), testModelId, testGasLimit)
		require.NoError(t, err)
		assert.Equal(t, uint64(777), fee)
	}

	var count int64
	require.NoError(t, db.Model(&database.PromptRequest{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEstimateFeeUpstreamFailure(t *testing.T) {
	db := createDB(t)
	b, fake, _ := newTestBroker(t, db)
	fake.feeErr = errors.New("timeout")

	_, err := b.EstimateFee(context.Background(), testModelId, testGasLimit)
	assert.ErrorIs(t, err, broker.ErrUpstreamUnavailable)
}

func TestGetRequest(t *testing.T) {
	db := createDB(t, seedPolicy(testModelId, testGasLimit))
	b, _, queue := newTestBroker(t, db)

	requestId, err := b.Submit(context.Background(), broker.SubmitParams{Prompt: "Hello World", Sender: "alice"})
	require.NoError(t, err)
	nextEvent[models.SubmissionEvent](t, queue, messaging.SubmissionQueue)

	record, err := b.GetRequest(context.Background(), requestId)
	require.NoError(t, err)
	assert.Equal(t, "alice", record.Sender)

	_, err = b.GetRequest(context.Background(), requestId+1)
	assert.ErrorIs(t, err, broker.ErrUnknownRequest)
}
