package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestMongo(t *testing.T) *MongoKV {
	if testing.Short() {
		t.Skip("skipping mongo container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	kv := NewMongoKV(db)
	require.NoError(t, kv.CreateIndexes(ctx))
	return kv
}

func TestMongoKV_RoundTrip(t *testing.T) {
	kv := setupTestMongo(t)
	ctx := context.Background()

	_, err := kv.Get(ctx, "guest_cart:d1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, "guest_cart:d1", []byte(`{"count":2}`), time.Hour))
	require.NoError(t, kv.Set(ctx, "guest_cart:d1", []byte(`{"count":3}`), time.Hour))

	got, err := kv.Get(ctx, "guest_cart:d1")
	require.NoError(t, err)
	assert.Equal(t, `{"count":3}`, string(got))

	require.NoError(t, kv.Delete(ctx, "guest_cart:d1"))
	_, err = kv.Get(ctx, "guest_cart:d1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoKV_ExpiredReadsAsMissing(t *testing.T) {
	kv := setupTestMongo(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "email-otp-session:d1", []byte("x"), time.Minute))

	kv.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err := kv.Get(ctx, "email-otp-session:d1")
	assert.ErrorIs(t, err, ErrNotFound)
}
