package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/storage"
)

func TestStore_ProfileRoundTripIsCopied(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Profile(ctx, "u1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	p := &models.Profile{ID: "u1", NoteName: "a"}
	require.NoError(t, s.SaveProfile(ctx, p))
	p.NoteName = "mutated"

	got, err := s.Profile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "a", got.NoteName)
}

func TestStore_ReplaceSubscriptionKeepsOne(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.ReplaceSubscription(ctx, &models.PushSubscription{ID: "1", UserID: "u1", Subscription: "{}"}))
	require.NoError(t, s.ReplaceSubscription(ctx, &models.PushSubscription{ID: "2", UserID: "u1", Subscription: "{}"}))

	subs, err := s.Subscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "2", subs[0].ID)
}

func TestStore_DeleteUserRemovesEverything(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.ErrorIs(t, s.DeleteUser(ctx, "u1"), storage.ErrNotFound)

	require.NoError(t, s.SaveProfile(ctx, &models.Profile{ID: "u1"}))
	require.NoError(t, s.ReplaceSubscription(ctx, &models.PushSubscription{ID: "1", UserID: "u1"}))
	require.NoError(t, s.SaveCredentials(ctx, &models.Credentials{UserID: "u1", PasswordHash: "h"}))

	require.NoError(t, s.DeleteUser(ctx, "u1"))

	_, err := s.Profile(ctx, "u1")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Credentials(ctx, "u1")
	require.ErrorIs(t, err, storage.ErrNotFound)
	subs, err := s.Subscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, subs)
}
