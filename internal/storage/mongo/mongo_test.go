package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/storage"
)

const testTimeout = 10 * time.Second

// TestMain starts one MongoDB container for the package when GO_TEST_INTEGRATION is set.
func TestMain(m *testing.M) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	mongoC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7.0",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start mongo testcontainer: %v\n", err)
		os.Exit(1)
	}

	host, err := mongoC.Host(ctx)
	if err != nil {
		_ = mongoC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := mongoC.MappedPort(ctx, "27017/tcp")
	if err != nil {
		_ = mongoC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get mapped port: %v\n", err)
		os.Exit(1)
	}
	_ = os.Setenv("MONGO_URI", fmt.Sprintf("mongodb://%s:%s", host, port.Port()))

	code := m.Run()
	_ = mongoC.Terminate(context.Background())
	os.Exit(code)
}

func mustNewStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if os.Getenv("GO_TEST_INTEGRATION") == "" || uri == "" {
		t.Skip("set GO_TEST_INTEGRATION=1 to run MongoDB integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	s, err := New(ctx, uri, "peek_test_"+uuid.NewString()[:8])
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = s.db.Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func TestWantsTLS(t *testing.T) {
	require.True(t, wantsTLS("mongodb+srv://cluster0.example.net/peek"))
	require.True(t, wantsTLS("mongodb://h:27017/?tls=true"))
	require.False(t, wantsTLS("mongodb://localhost:27017"))
}

func TestStore_ProfileLifecycle(t *testing.T) {
	s := mustNewStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	_, err := s.Profile(ctx, "u1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	month, day := 3, 6
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.SaveProfile(ctx, &models.Profile{
		ID: "u1", NoteName: "n", BirthdayMonth: &month, BirthdayDay: &day, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.SaveProfile(ctx, &models.Profile{
		ID: "u1", NoteName: "n2", CreatedAt: now, UpdatedAt: now,
	}))

	got, err := s.Profile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "n2", got.NoteName)
	require.Nil(t, got.BirthdayMonth)

	require.NoError(t, s.ReplaceSubscription(ctx, &models.PushSubscription{ID: "a", UserID: "u1", Subscription: "{}", CreatedAt: now}))
	require.NoError(t, s.ReplaceSubscription(ctx, &models.PushSubscription{ID: "b", UserID: "u1", Subscription: "{}", CreatedAt: now}))
	subs, err := s.Subscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "b", subs[0].ID)

	require.NoError(t, s.SaveCredentials(ctx, &models.Credentials{UserID: "u1", PasswordHash: "h"}))

	require.NoError(t, s.DeleteUser(ctx, "u1"))
	require.ErrorIs(t, s.DeleteUser(ctx, "u1"), storage.ErrNotFound)

	subs, err = s.Subscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, subs)
	_, err = s.Credentials(ctx, "u1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
