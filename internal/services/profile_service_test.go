package services_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/services"
	"github.com/sensus/peek/internal/storage"
	"github.com/sensus/peek/internal/storage/disk"
	"github.com/sensus/peek/internal/storage/memory"
	"github.com/sensus/peek/mocks"
)

var fixedNow = time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)

type env struct {
	svc      *services.ProfileService
	store    *memory.Store
	dir      string
	notifier *mocks.MockNotifier
}

func newEnv(t *testing.T) *env {
	t.Helper()

	ctrl := gomock.NewController(t)
	dir := t.TempDir()
	shots, err := disk.New(dir)
	require.NoError(t, err)

	store := memory.New()
	notifier := mocks.NewMockNotifier(ctrl)
	svc := services.NewProfileService(store, shots, notifier,
		services.WithClock(func() time.Time { return fixedNow }),
		services.WithPushTimeout(time.Second),
	)
	t.Cleanup(svc.Wait)

	return &env{svc: svc, store: store, dir: dir, notifier: notifier}
}

func strPtr(s string) *string { return &s }

func fileExists(t *testing.T, dir, ref string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, ref))
	return err == nil
}

func TestProfileService_GetUnknownIsNotFound(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, services.ErrUserNotFound)

	_, err = e.svc.Get(context.Background(), "")
	require.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestProfileService_EnsureCreatesOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.svc.Ensure(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", p.ID)
	require.Equal(t, fixedNow, p.CreatedAt)

	again, err := e.svc.Ensure(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, p.CreatedAt, again.CreatedAt)
}

func TestProfileService_UpdateDataMerges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.UpdateData(ctx, "u1", models.UpdateDataRequest{
		FirstName: strPtr("Ada"),
		LastName:  strPtr("Lovelace"),
		Birthday:  strPtr("2008-03-06"),
	})
	require.NoError(t, err)

	p, err := e.svc.UpdateData(ctx, "u1", models.UpdateDataRequest{PhoneNumber: strPtr("555")})
	require.NoError(t, err)

	require.Equal(t, "Ada", p.FirstName)
	require.Equal(t, "Lovelace", p.LastName)
	require.Equal(t, "555", p.PhoneNumber)
	require.Equal(t, "2008-03-06", p.Birthday)
	require.Equal(t, 2008, *p.BirthdayYear)
	require.Equal(t, 3, *p.BirthdayMonth)
	require.Equal(t, 6, *p.BirthdayDay)
	require.NotNil(t, p.DaysAlive)
	require.Equal(t, 5848, *p.DaysAlive)
	require.Equal(t, fixedNow, *p.DataUpdatedAt)
	require.Equal(t, fixedNow, p.UpdatedAt)
}

func TestProfileService_UpdateDataPartialBirthdayHasNoDaysAlive(t *testing.T) {
	e := newEnv(t)

	p, err := e.svc.UpdateData(context.Background(), "u1", models.UpdateDataRequest{Birthday: strPtr("06/03")})
	require.NoError(t, err)

	require.Equal(t, "06-03", p.Birthday)
	require.Nil(t, p.BirthdayYear)
	require.Equal(t, 6, *p.BirthdayMonth)
	require.Equal(t, 3, *p.BirthdayDay)
	require.Nil(t, p.DaysAlive)
}

func TestProfileService_BirthdayMonthAndDaySetTogether(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, in := range []string{"2008-03-06", "2008-03", "06-03", "2008/03", "25-12-1990", ""} {
		p, err := e.svc.UpdateData(ctx, "u1", models.UpdateDataRequest{Birthday: strPtr(in)})
		require.NoError(t, err, in)
		require.Equal(t, p.BirthdayMonth == nil, p.BirthdayDay == nil, in)
	}

	p, err := e.svc.UpdateData(ctx, "u1", models.UpdateDataRequest{Birthday: strPtr("2008-03")})
	require.NoError(t, err)
	require.Equal(t, 2008, *p.BirthdayYear)
	require.Nil(t, p.BirthdayMonth)
	require.Nil(t, p.BirthdayDay)
	require.Nil(t, p.DaysAlive)
	require.Equal(t, "2008-03", p.DataView().BirthdayDisplay)
}

// An invalid birthday aborts the whole update: the name in the same request is not applied.
func TestProfileService_UpdateDataInvalidBirthdayWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.UpdateData(ctx, "u1", models.UpdateDataRequest{FirstName: strPtr("Ada")})
	require.NoError(t, err)

	_, err = e.svc.UpdateData(ctx, "u1", models.UpdateDataRequest{
		FirstName: strPtr("Grace"),
		Birthday:  strPtr("2008-13-01"),
	})
	require.ErrorIs(t, err, services.ErrInvalidBirthday)

	p, err := e.svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Ada", p.FirstName)
}

// At the update call site an empty birthday clears the stored one.
func TestProfileService_UpdateDataEmptyBirthdayClears(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.UpdateData(ctx, "u1", models.UpdateDataRequest{Birthday: strPtr("2008-03-06")})
	require.NoError(t, err)

	p, err := e.svc.UpdateData(ctx, "u1", models.UpdateDataRequest{Birthday: strPtr("  ")})
	require.NoError(t, err)
	require.Empty(t, p.Birthday)
	require.Nil(t, p.BirthdayYear)
	require.Nil(t, p.BirthdayMonth)
	require.Nil(t, p.BirthdayDay)
	require.Nil(t, p.DaysAlive)
}

func TestProfileService_UpdateNoteNotifiesOnlyOnChange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	e.notifier.EXPECT().
		Notify(gomock.Any(), "u1", "Note updated", "groceries").
		DoAndReturn(func(context.Context, string, string, string) services.DispatchReport {
			wg.Done()
			return services.DispatchReport{Attempted: 1, Delivered: 1}
		}).
		Times(2)

	_, err := e.svc.UpdateNote(ctx, "u1", models.UpdateNoteRequest{NoteName: strPtr("groceries"), NoteBody: strPtr("milk")})
	require.NoError(t, err)

	// Same values: no dispatch, timestamp still stamped.
	p, err := e.svc.UpdateNote(ctx, "u1", models.UpdateNoteRequest{NoteName: strPtr("groceries"), NoteBody: strPtr("milk")})
	require.NoError(t, err)
	require.Equal(t, fixedNow, *p.NoteUpdatedAt)

	p, err = e.svc.UpdateNote(ctx, "u1", models.UpdateNoteRequest{NoteBody: strPtr("milk, eggs")})
	require.NoError(t, err)
	require.Equal(t, "groceries", p.NoteName)
	require.Equal(t, "milk, eggs", p.NoteBody)

	wg.Wait()
	e.svc.Wait()
}

func TestProfileService_UpdateScreenNotifiesOnlyOnChange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	e.notifier.EXPECT().
		Notify(gomock.Any(), "u1", "Screen updated", gomock.Any()).
		DoAndReturn(func(context.Context, string, string, string) services.DispatchReport {
			wg.Done()
			return services.DispatchReport{Attempted: 1, Delivered: 1}
		}).
		Times(2)

	_, err := e.svc.UpdateScreen(ctx, "u1", services.ScreenUpdate{Contact: strPtr("Bob"), URL: strPtr("https://example.com")})
	require.NoError(t, err)

	// Same contact and url, no screenshot: no dispatch, timestamp still stamped.
	p, err := e.svc.UpdateScreen(ctx, "u1", services.ScreenUpdate{Contact: strPtr("Bob"), URL: strPtr("https://example.com")})
	require.NoError(t, err)
	require.Equal(t, fixedNow, *p.ScreenUpdatedAt)

	p, err = e.svc.UpdateScreen(ctx, "u1", services.ScreenUpdate{})
	require.NoError(t, err)
	require.Equal(t, "Bob", p.Contact)

	p, err = e.svc.UpdateScreen(ctx, "u1", services.ScreenUpdate{URL: strPtr("https://example.org")})
	require.NoError(t, err)
	require.Equal(t, "Bob", p.Contact)
	require.Equal(t, "https://example.org", p.URL)

	wg.Wait()
	e.svc.Wait()
}

// Dispatch outlives the request context.
func TestProfileService_NotifyDetachedFromRequest(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	e.notifier.EXPECT().
		Notify(gomock.Any(), "u1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _, _ string) services.DispatchReport {
			done <- ctx.Err()
			return services.DispatchReport{}
		})

	_, err := e.svc.UpdateNote(ctx, "u1", models.UpdateNoteRequest{NoteName: strPtr("x")})
	require.NoError(t, err)
	cancel()
	e.svc.Wait()

	select {
	case err := <-done:
		require.NoError(t, err)
	default:
		t.Fatal("notifier was not called")
	}
}

func TestProfileService_UpdateScreenReplacesScreenshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.notifier.EXPECT().Notify(gomock.Any(), "u1", "Screen updated", gomock.Any()).Return(services.DispatchReport{}).Times(3)

	p, err := e.svc.UpdateScreen(ctx, "u1", services.ScreenUpdate{
		Contact:    strPtr("Bob"),
		Screenshot: &services.ScreenshotUpload{Data: []byte("first"), ContentType: "image/png"},
	})
	require.NoError(t, err)
	first := p.Screenshot
	require.NotEmpty(t, first)
	require.True(t, fileExists(t, e.dir, first))

	p, err = e.svc.UpdateScreen(ctx, "u1", services.ScreenUpdate{
		Screenshot: &services.ScreenshotUpload{Data: []byte("second"), ContentType: "image/jpeg"},
	})
	require.NoError(t, err)
	second := p.Screenshot
	require.NotEqual(t, first, second)
	require.Equal(t, ".jpg", filepath.Ext(second))
	require.False(t, fileExists(t, e.dir, first))
	require.True(t, fileExists(t, e.dir, second))
	require.Equal(t, "Bob", p.Contact)

	rc, ct, err := e.svc.OpenScreenshot(ctx, "u1")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "second", string(body))
	require.Equal(t, "image/jpeg", ct)

	// url change notifies as well
	_, err = e.svc.UpdateScreen(ctx, "u1", services.ScreenUpdate{URL: strPtr("https://example.com")})
	require.NoError(t, err)
	e.svc.Wait()
}

func TestProfileService_UpdateScreenRejectsEmptyScreenshot(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.UpdateScreen(context.Background(), "u1", services.ScreenUpdate{
		Screenshot: &services.ScreenshotUpload{ContentType: "image/png"},
	})
	require.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestProfileService_OpenScreenshotMissing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, _, err := e.svc.OpenScreenshot(ctx, "nobody")
	require.ErrorIs(t, err, services.ErrUserNotFound)

	_, err = e.svc.Ensure(ctx, "u1")
	require.NoError(t, err)
	_, _, err = e.svc.OpenScreenshot(ctx, "u1")
	require.ErrorIs(t, err, services.ErrScreenshotNotFound)
}

func TestProfileService_UpdateCommand(t *testing.T) {
	e := newEnv(t)

	p, err := e.svc.UpdateCommand(context.Background(), "u1", models.UpdateCommandRequest{Command: strPtr("reload")})
	require.NoError(t, err)
	require.Equal(t, "reload", p.Command)
	require.Equal(t, fixedNow, *p.CommandUpdatedAt)
}

func TestProfileService_ClearIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(services.DispatchReport{}).AnyTimes()

	_, err := e.svc.UpdateData(ctx, "u1", models.UpdateDataRequest{FirstName: strPtr("Ada"), Birthday: strPtr("03-06")})
	require.NoError(t, err)
	_, err = e.svc.UpdateNote(ctx, "u1", models.UpdateNoteRequest{NoteName: strPtr("n")})
	require.NoError(t, err)
	p, err := e.svc.UpdateScreen(ctx, "u1", services.ScreenUpdate{
		Contact:    strPtr("Bob"),
		Screenshot: &services.ScreenshotUpload{Data: []byte("img")},
	})
	require.NoError(t, err)
	ref := p.Screenshot

	first, err := e.svc.ClearData(ctx, "u1")
	require.NoError(t, err)
	second, err := e.svc.ClearData(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Empty(t, second.FirstName)
	require.Nil(t, second.BirthdayMonth)
	require.Equal(t, "n", second.NoteName)
	require.Equal(t, ref, second.Screenshot)
	require.True(t, fileExists(t, e.dir, ref))

	p, err = e.svc.ClearScreen(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, p.Contact)
	require.Empty(t, p.Screenshot)
	require.False(t, fileExists(t, e.dir, ref))

	_, err = e.svc.ClearScreen(ctx, "u1")
	require.NoError(t, err)
	e.svc.Wait()
}

func TestProfileService_ClearAll(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(services.DispatchReport{}).AnyTimes()

	_, err := e.svc.UpdateCommand(ctx, "u1", models.UpdateCommandRequest{Command: strPtr("beep")})
	require.NoError(t, err)
	p, err := e.svc.UpdateScreen(ctx, "u1", services.ScreenUpdate{Screenshot: &services.ScreenshotUpload{Data: []byte("img")}})
	require.NoError(t, err)
	ref := p.Screenshot

	p, err = e.svc.ClearAll(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, p.Command)
	require.Empty(t, p.Screenshot)
	require.Equal(t, fixedNow, *p.DataUpdatedAt)
	require.Equal(t, fixedNow, *p.NoteUpdatedAt)
	require.Equal(t, fixedNow, *p.ScreenUpdatedAt)
	require.Equal(t, fixedNow, *p.CommandUpdatedAt)
	require.False(t, fileExists(t, e.dir, ref))
	e.svc.Wait()
}

func TestProfileService_DeleteRemovesEverything(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(services.DispatchReport{}).AnyTimes()

	p, err := e.svc.UpdateScreen(ctx, "u1", services.ScreenUpdate{Screenshot: &services.ScreenshotUpload{Data: []byte("img")}})
	require.NoError(t, err)
	require.NoError(t, e.store.ReplaceSubscription(ctx, &models.PushSubscription{ID: "s1", UserID: "u1", Subscription: "{}"}))
	e.svc.Wait()

	require.NoError(t, e.svc.Delete(ctx, "u1"))

	require.False(t, fileExists(t, e.dir, p.Screenshot))
	subs, err := e.store.Subscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, subs)
	_, err = e.svc.Get(ctx, "u1")
	require.ErrorIs(t, err, services.ErrUserNotFound)

	require.ErrorIs(t, e.svc.Delete(ctx, "u1"), services.ErrUserNotFound)
}

// A failed profile save removes the freshly written screenshot and keeps the old one.
func TestProfileService_UpdateScreenSaveFailureRemovesNewArtifact(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	shots := mocks.NewMockScreenshots(ctrl)
	svc := services.NewProfileService(store, shots, nil)

	existing := &models.Profile{ID: "u1", Screenshot: "old.png"}
	boom := errors.New("disk full")

	gomock.InOrder(
		shots.EXPECT().Put(gomock.Any(), "u1", []byte("img"), "image/png").Return("new.png", nil),
		store.EXPECT().Profile(gomock.Any(), "u1").Return(existing, nil),
		store.EXPECT().SaveProfile(gomock.Any(), gomock.Any()).Return(boom),
		shots.EXPECT().Remove(gomock.Any(), "new.png").Return(nil),
	)

	_, err := svc.UpdateScreen(context.Background(), "u1", services.ScreenUpdate{
		Screenshot: &services.ScreenshotUpload{Data: []byte("img"), ContentType: "image/png"},
	})
	require.ErrorIs(t, err, boom)
}

// Old-artifact cleanup is best effort: its failure does not fail the update.
func TestProfileService_UpdateScreenCleanupFailureIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	shots := mocks.NewMockScreenshots(ctrl)
	svc := services.NewProfileService(store, shots, nil)

	gomock.InOrder(
		shots.EXPECT().Put(gomock.Any(), "u1", gomock.Any(), gomock.Any()).Return("new.png", nil),
		store.EXPECT().Profile(gomock.Any(), "u1").Return(&models.Profile{ID: "u1", Screenshot: "old.png"}, nil),
		store.EXPECT().SaveProfile(gomock.Any(), gomock.Any()).Return(nil),
		shots.EXPECT().Remove(gomock.Any(), "old.png").Return(errors.New("permission denied")),
	)

	p, err := svc.UpdateScreen(context.Background(), "u1", services.ScreenUpdate{
		Screenshot: &services.ScreenshotUpload{Data: []byte("img")},
	})
	require.NoError(t, err)
	require.Equal(t, "new.png", p.Screenshot)
}

func TestProfileService_StoreErrorsPropagate(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := services.NewProfileService(store, mocks.NewMockScreenshots(ctrl), nil)
	boom := errors.New("connection reset")

	store.EXPECT().Profile(gomock.Any(), "u1").Return(nil, boom).Times(2)

	_, err := svc.Get(context.Background(), "u1")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, services.ErrUserNotFound)

	_, err = svc.UpdateCommand(context.Background(), "u1", models.UpdateCommandRequest{Command: strPtr("x")})
	require.ErrorIs(t, err, boom)
}

func TestProfileService_DeleteMapsStoreNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := services.NewProfileService(store, mocks.NewMockScreenshots(ctrl), nil)

	store.EXPECT().Profile(gomock.Any(), "u1").Return(nil, storage.ErrNotFound)

	require.ErrorIs(t, svc.Delete(context.Background(), "u1"), services.ErrUserNotFound)
}

// Concurrent writers to the same user never lose each other's fields.
func TestProfileService_ConcurrentGroupUpdates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(services.DispatchReport{}).AnyTimes()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = e.svc.UpdateData(ctx, "u1", models.UpdateDataRequest{FirstName: strPtr("Ada")})
		}()
		go func() {
			defer wg.Done()
			_, _ = e.svc.UpdateCommand(ctx, "u1", models.UpdateCommandRequest{Command: strPtr("go")})
		}()
	}
	wg.Wait()

	p, err := e.svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Ada", p.FirstName)
	require.Equal(t, "go", p.Command)
	e.svc.Wait()
}
