package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/signalbrief/trends-pipeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of the key-value store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) LPush(ctx context.Context, key, value string) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *MockStore) LRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	args := m.Called(key, start, stop)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) SAdd(ctx context.Context, key, member string) error {
	args := m.Called(key, member)
	return args.Error(0)
}

func (m *MockStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	args := m.Called(key, member)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Expire(ctx context.Context, key string, seconds int) error {
	args := m.Called(key, seconds)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func post(id string) models.CanonicalPost {
	return models.CanonicalPost{ExternalID: id, Text: "post " + id}
}

func serialized(p models.CanonicalPost) string {
	data, _ := json.Marshal(p)
	return string(data)
}

func TestGate_ProcessAndStore_DeduplicatesWithinBatch(t *testing.T) {
	store := &MockStore{}
	gate := NewGate(store, 0)

	// Batch contains "1" twice and "2" once; the second "1" must be
	// skipped because the first iteration marked it as seen.
	first := post("1")
	second := post("2")

	store.On("SIsMember", "tech:seen-ids", "1").Return(false, nil).Once()
	store.On("LPush", "tech", serialized(first)).Return(nil).Once()
	store.On("SAdd", "tech:seen-ids", "1").Return(nil).Once()
	store.On("Expire", "tech:seen-ids", DedupTTLSeconds).Return(nil).Once()

	store.On("SIsMember", "tech:seen-ids", "1").Return(true, nil).Once()

	store.On("SIsMember", "tech:seen-ids", "2").Return(false, nil).Once()
	store.On("LPush", "tech", serialized(second)).Return(nil).Once()
	store.On("SAdd", "tech:seen-ids", "2").Return(nil).Once()
	store.On("Expire", "tech:seen-ids", DedupTTLSeconds).Return(nil).Once()

	result := gate.ProcessAndStore(context.Background(), "tech", []models.CanonicalPost{first, post("1"), second})

	assert.Equal(t, 2, result.Stored)
	assert.Equal(t, 1, result.SkippedDuplicate)
	assert.Equal(t, 0, result.SkippedNoID)
	assert.Equal(t, 0, result.Errors)
	store.AssertExpectations(t)
}

func TestGate_ProcessAndStore_SecondRunIsIdempotent(t *testing.T) {
	store := &MockStore{}
	gate := NewGate(store, 0)

	store.On("SIsMember", "tech:seen-ids", "1").Return(true, nil).Once()

	result := gate.ProcessAndStore(context.Background(), "tech", []models.CanonicalPost{post("1")})

	assert.Equal(t, 0, result.Stored)
	assert.Equal(t, 1, result.SkippedDuplicate)
	store.AssertNotCalled(t, "LPush", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestGate_ProcessAndStore_SkipsPostsWithoutID(t *testing.T) {
	store := &MockStore{}
	gate := NewGate(store, 0)

	result := gate.ProcessAndStore(context.Background(), "tech", []models.CanonicalPost{
		{Text: "no id here"},
	})

	assert.Equal(t, 1, result.SkippedNoID)
	assert.Equal(t, 0, result.Stored)
	store.AssertNotCalled(t, "SIsMember", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "LPush", mock.Anything, mock.Anything)
}

func TestGate_ProcessAndStore_PerPostErrorsDoNotAbortBatch(t *testing.T) {
	store := &MockStore{}
	gate := NewGate(store, 0)

	failing := post("1")
	healthy := post("2")

	store.On("SIsMember", "tech:seen-ids", "1").Return(false, nil).Once()
	store.On("LPush", "tech", serialized(failing)).Return(errors.New("connection reset")).Once()

	store.On("SIsMember", "tech:seen-ids", "2").Return(false, nil).Once()
	store.On("LPush", "tech", serialized(healthy)).Return(nil).Once()
	store.On("SAdd", "tech:seen-ids", "2").Return(nil).Once()
	store.On("Expire", "tech:seen-ids", DedupTTLSeconds).Return(nil).Once()

	result := gate.ProcessAndStore(context.Background(), "tech", []models.CanonicalPost{failing, healthy})

	assert.Equal(t, 1, result.Stored)
	assert.Equal(t, 1, result.Errors)
	store.AssertExpectations(t)
}

func TestGate_ProcessAndStore_MarkFailureStillCountsStored(t *testing.T) {
	store := &MockStore{}
	gate := NewGate(store, 0)

	p := post("1")

	store.On("SIsMember", "tech:seen-ids", "1").Return(false, nil).Once()
	store.On("LPush", "tech", serialized(p)).Return(nil).Once()
	store.On("SAdd", "tech:seen-ids", "1").Return(errors.New("timeout")).Once()

	result := gate.ProcessAndStore(context.Background(), "tech", []models.CanonicalPost{p})

	// The record is in the list even though the marker is missing; the
	// next window may append it again and the contract accepts that.
	assert.Equal(t, 1, result.Stored)
	assert.Equal(t, 1, result.Errors)
	store.AssertNotCalled(t, "Expire", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}
