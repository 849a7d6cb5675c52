//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func startMongo(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("vidorder_test")
	require.NoError(t, EnsureMongoIndexes(ctx, db))
	return db
}

func TestMongoRepositories(t *testing.T) {
	db := startMongo(t)
	runUserContract(t, NewMongoUserRepository(db))
	runOrderContract(t, NewMongoOrderRepository(db))
	runConcurrentUpdateContract(t, NewMongoOrderRepository(db))
}
