package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dontdude/markcheck/internal/domain"
	"github.com/dontdude/markcheck/internal/mocks"
	"github.com/dontdude/markcheck/internal/platform/memstore"
	"github.com/dontdude/markcheck/internal/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// Formatting inside results is deliberate: it must survive untouched.
const sampleResults = `{"find_same_name": {"result": false, "msg": "no identical mark"},
  "find_similar_name": {"result": true, "data": [["ACME", "cosmetics", null]]},
  "find_similar_pronun": {"result": false, "msg": "none"},
  "tokenize": {"tokens": ["ac", "me"]},
  "check_elastic": {"result": false, "NegativeTokens": []},
  "similarity_score": 0.73}`

func resultMessage(t *testing.T, owner string) domain.Message {
	t.Helper()
	payload := `{"uid":"` + owner + `","name":"Acme","product_name":"cosmetics","imageUrl":"https://img/acme.png","results":` + sampleResults + `}`
	require.True(t, json.Valid([]byte(payload)))
	return domain.Message{ID: "1700000000000-0", Topic: "trademark-results", Payload: []byte(payload)}
}

func receive(t *testing.T, l *subscription.Listener) json.RawMessage {
	t.Helper()
	select {
	case msg := <-l.C():
		return msg
	case <-time.After(time.Second):
		t.Fatal("no live delivery")
		return nil
	}
}

func assertNoDelivery(t *testing.T, l *subscription.Listener) {
	t.Helper()
	select {
	case msg := <-l.C():
		t.Fatalf("unexpected live delivery: %s", msg)
	default:
	}
}

func TestHandle_PersistsThenDeliversVerbatim(t *testing.T) {
	store := memstore.NewResultStore()
	registry := subscription.NewRegistry(0)
	listener := registry.Attach("u1")

	err := New(store, registry).Handle(context.Background(), resultMessage(t, "u1"))
	require.NoError(t, err)

	assert.Equal(t, sampleResults, string(receive(t, listener)))

	records, err := store.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, sampleResults, string(records[0].Results))
	assert.Equal(t, "Acme", records[0].Name)
	assert.Equal(t, "cosmetics", records[0].ProductCategory)
	assert.Equal(t, "https://img/acme.png", records[0].ImageReference)
	assert.False(t, records[0].CreatedAt.IsZero())
}

func TestHandle_NoListenerStillPersists(t *testing.T) {
	store := memstore.NewResultStore()
	registry := subscription.NewRegistry(0)

	require.NoError(t, New(store, registry).Handle(context.Background(), resultMessage(t, "u3")))

	records, err := store.ListByOwner(context.Background(), "u3")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Zero(t, registry.Len(), "delivery must not create channels")
}

func TestHandle_FanOutToAllListeners(t *testing.T) {
	registry := subscription.NewRegistry(0)
	first := registry.Attach("u4")
	second := registry.Attach("u4")
	other := registry.Attach("u5")

	require.NoError(t, New(memstore.NewResultStore(), registry).Handle(context.Background(), resultMessage(t, "u4")))

	assert.Equal(t, sampleResults, string(receive(t, first)))
	assert.Equal(t, sampleResults, string(receive(t, second)))
	assertNoDelivery(t, first)
	assertNoDelivery(t, other)
}

func TestHandle_PersistenceFailureSuppressesDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockResultStore(ctrl)
	registry := subscription.NewRegistry(0)
	listener := registry.Attach("u1")
	cause := errors.New("connection reset")

	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(domain.Record{}, cause).Times(1)

	err := New(store, registry).Handle(context.Background(), resultMessage(t, "u1"))

	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assertNoDelivery(t, listener)
}

func TestHandle_StampsCreationTime(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockResultStore(ctrl)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec domain.Record) (domain.Record, error) {
			assert.Equal(t, fixed, rec.CreatedAt)
			assert.Equal(t, "u1", rec.OwnerKey)
			rec.ID = 7
			return rec, nil
		})

	c := New(store, subscription.NewRegistry(0))
	c.now = func() time.Time { return fixed }
	require.NoError(t, c.Handle(context.Background(), resultMessage(t, "u1")))
}

func TestHandle_InvalidEnvelopes(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"uid":`,
		"missing owner":   `{"name":"Acme","results":{}}`,
		"missing results": `{"uid":"u1","name":"Acme"}`,
		"null results":    `{"uid":"u1","name":"Acme","results":null}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockResultStore(ctrl) // no calls expected
			registry := subscription.NewRegistry(0)
			listener := registry.Attach("u1")

			err := New(store, registry).Handle(context.Background(), domain.Message{ID: "1-0", Payload: []byte(payload)})

			assert.ErrorIs(t, err, domain.ErrInvalidEnvelope)
			assertNoDelivery(t, listener)
		})
	}
}

func TestHandle_FailureIsolatedPerOwner(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockResultStore(ctrl)
	registry := subscription.NewRegistry(0)
	healthy := registry.Attach("ok")

	store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec domain.Record) (domain.Record, error) {
			if rec.OwnerKey == "broken" {
				return domain.Record{}, errors.New("disk full")
			}
			return rec, nil
		}).Times(2)

	c := New(store, registry)
	assert.Error(t, c.Handle(context.Background(), resultMessage(t, "broken")))
	assert.NoError(t, c.Handle(context.Background(), resultMessage(t, "ok")))

	assert.Equal(t, sampleResults, string(receive(t, healthy)))
}
