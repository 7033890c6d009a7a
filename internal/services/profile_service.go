package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sensus/peek/internal/birthday"
	"github.com/sensus/peek/internal/logging"
	"github.com/sensus/peek/internal/metrics"
	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/storage"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidBirthday    = birthday.ErrInvalid
	ErrScreenshotNotFound = errors.New("screenshot not found")
)

const (
	lockStripes        = 64
	defaultPushTimeout = 10 * time.Second
)

// Peek group names used in logs and metrics.
const (
	GroupData    = "data"
	GroupNote    = "note"
	GroupScreen  = "screen"
	GroupCommand = "command"
	GroupAll     = "all"
)

// ScreenshotUpload is a decoded screenshot binary ready to be stored.
type ScreenshotUpload struct {
	Data        []byte
	ContentType string
}

// ScreenUpdate is a partial screen peek update. Screenshot is nil when the binary
// is left untouched.
type ScreenUpdate struct {
	Contact    *string
	URL        *string
	Screenshot *ScreenshotUpload
}

// ProfileService owns the profile lifecycle: lazy creation, per-group partial updates,
// clears, deletion and the change notifications of the note and screen groups.
//
// Read-modify-write cycles are serialised per user id. Notifications run after the
// store write, detached from the caller's context.
type ProfileService struct {
	store       storage.Store
	shots       storage.Screenshots
	notifier    Notifier
	pushTimeout time.Duration
	now         func() time.Time

	locks [lockStripes]sync.Mutex
	wg    sync.WaitGroup
}

type ProfileOption func(*ProfileService)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) ProfileOption {
	return func(s *ProfileService) { s.now = now }
}

// WithPushTimeout bounds each notification dispatch.
func WithPushTimeout(d time.Duration) ProfileOption {
	return func(s *ProfileService) {
		if d > 0 {
			s.pushTimeout = d
		}
	}
}

// NewProfileService wires the service. notifier may be nil when push is disabled.
func NewProfileService(store storage.Store, shots storage.Screenshots, notifier Notifier, opts ...ProfileOption) *ProfileService {
	s := &ProfileService{
		store:       store,
		shots:       shots,
		notifier:    notifier,
		pushTimeout: defaultPushTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ProfileService) lock(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &s.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *ProfileService) stamp() time.Time {
	return s.now().UTC()
}

// Get returns the stored profile with days_alive refreshed for today.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	const op = "services.ProfileService.Get"

	if userID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}

	p, err := s.store.Profile(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.refreshDaysAlive(p)
	return p, nil
}

// Ensure returns the user's profile, creating an empty one if missing.
func (s *ProfileService) Ensure(ctx context.Context, userID string) (*models.Profile, error) {
	const op = "services.ProfileService.Ensure"

	if userID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}

	unlock := s.lock(userID)
	defer unlock()

	p, created, err := s.load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if created {
		if err := s.store.SaveProfile(ctx, p); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logging.Ctx(ctx).Info().Str("user", userID).Msg("profile created")
	}
	return p, nil
}

// load fetches the profile or builds a new unsaved one. Callers hold the user lock.
func (s *ProfileService) load(ctx context.Context, userID string) (*models.Profile, bool, error) {
	p, err := s.store.Profile(ctx, userID)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}
	now := s.stamp()
	return &models.Profile{ID: userID, CreatedAt: now, UpdatedAt: now}, true, nil
}

// mutate runs fn on the (possibly new) profile under the user lock and saves it.
// fn reports whether a notification-relevant field changed.
func (s *ProfileService) mutate(ctx context.Context, op, userID string, fn func(p *models.Profile, now time.Time) bool) (*models.Profile, bool, error) {
	if userID == "" {
		return nil, false, fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}

	unlock := s.lock(userID)
	defer unlock()

	p, _, err := s.load(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	now := s.stamp()
	changed := fn(p, now)
	p.UpdatedAt = now

	if err := s.store.SaveProfile(ctx, p); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return p, changed, nil
}

// UpdateData merges the identity/contact fields. A non-empty birthday is parsed
// before anything is written; an empty one clears the stored birthday.
func (s *ProfileService) UpdateData(ctx context.Context, userID string, req models.UpdateDataRequest) (*models.Profile, error) {
	const op = "services.ProfileService.UpdateData"

	var (
		bday      birthday.Date
		clearBday bool
	)
	if req.Birthday != nil {
		if strings.TrimSpace(*req.Birthday) == "" {
			clearBday = true
		} else {
			d, err := birthday.Parse(*req.Birthday)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			bday = d
		}
	}

	p, _, err := s.mutate(ctx, op, userID, func(p *models.Profile, now time.Time) bool {
		changed := merge(&p.FirstName, req.FirstName)
		changed = merge(&p.LastName, req.LastName) || changed
		changed = merge(&p.JobTitle, req.JobTitle) || changed
		changed = merge(&p.PhoneNumber, req.PhoneNumber) || changed
		changed = merge(&p.Address, req.Address) || changed

		switch {
		case clearBday:
			changed = p.Birthday != "" || changed
			clearBirthday(p)
		case req.Birthday != nil:
			changed = p.Birthday != bday.Raw || changed
			p.Birthday = bday.Raw
			p.BirthdayYear, p.BirthdayMonth, p.BirthdayDay = bday.Year, bday.Month, bday.Day
			p.DaysAlive = nil
			if days, ok := birthday.DaysAlive(bday.Year, bday.Month, bday.Day, now); ok {
				p.DaysAlive = &days
			}
		}

		p.DataUpdatedAt = &now
		return changed
	})
	if err != nil {
		return nil, err
	}

	metrics.PeekUpdates.WithLabelValues(GroupData, "update").Inc()
	return p, nil
}

// UpdateNote merges the note fields and notifies when either changed.
func (s *ProfileService) UpdateNote(ctx context.Context, userID string, req models.UpdateNoteRequest) (*models.Profile, error) {
	const op = "services.ProfileService.UpdateNote"

	p, changed, err := s.mutate(ctx, op, userID, func(p *models.Profile, now time.Time) bool {
		changed := merge(&p.NoteName, req.NoteName)
		changed = merge(&p.NoteBody, req.NoteBody) || changed
		p.NoteUpdatedAt = &now
		return changed
	})
	if err != nil {
		return nil, err
	}

	metrics.PeekUpdates.WithLabelValues(GroupNote, "update").Inc()
	if changed {
		s.dispatch(ctx, GroupNote, userID, "Note updated", noteBody(p))
	}
	return p, nil
}

// UpdateScreen merges contact and url and, when a screenshot is supplied, replaces
// the stored binary. The new artifact is written before the profile is saved and the
// old one is removed afterwards, so a failure never leaves a dangling reference.
func (s *ProfileService) UpdateScreen(ctx context.Context, userID string, upd ScreenUpdate) (*models.Profile, error) {
	const op = "services.ProfileService.UpdateScreen"

	if userID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}
	if upd.Screenshot != nil && len(upd.Screenshot.Data) == 0 {
		return nil, fmt.Errorf("%s: empty screenshot: %w", op, ErrInvalidInput)
	}

	var newRef, oldRef string
	if upd.Screenshot != nil {
		ref, err := s.shots.Put(ctx, userID, upd.Screenshot.Data, upd.Screenshot.ContentType)
		if err != nil {
			return nil, fmt.Errorf("%s: store screenshot: %w", op, err)
		}
		newRef = ref
	}

	p, changed, err := s.mutate(ctx, op, userID, func(p *models.Profile, now time.Time) bool {
		changed := merge(&p.Contact, upd.Contact)
		changed = merge(&p.URL, upd.URL) || changed
		if newRef != "" {
			oldRef = p.Screenshot
			p.Screenshot = newRef
			changed = true
		}
		p.ScreenUpdatedAt = &now
		return changed
	})
	if err != nil {
		if newRef != "" {
			s.removeScreenshot(ctx, userID, newRef)
		}
		return nil, err
	}

	if oldRef != "" {
		s.removeScreenshot(ctx, userID, oldRef)
	}

	metrics.PeekUpdates.WithLabelValues(GroupScreen, "update").Inc()
	if changed {
		s.dispatch(ctx, GroupScreen, userID, "Screen updated", screenBody(p))
	}
	return p, nil
}

func (s *ProfileService) UpdateCommand(ctx context.Context, userID string, req models.UpdateCommandRequest) (*models.Profile, error) {
	const op = "services.ProfileService.UpdateCommand"

	p, _, err := s.mutate(ctx, op, userID, func(p *models.Profile, now time.Time) bool {
		changed := merge(&p.Command, req.Command)
		p.CommandUpdatedAt = &now
		return changed
	})
	if err != nil {
		return nil, err
	}

	metrics.PeekUpdates.WithLabelValues(GroupCommand, "update").Inc()
	return p, nil
}

func (s *ProfileService) ClearData(ctx context.Context, userID string) (*models.Profile, error) {
	return s.clear(ctx, "services.ProfileService.ClearData", GroupData, userID, func(p *models.Profile, now time.Time) {
		clearData(p, now)
	})
}

func (s *ProfileService) ClearNote(ctx context.Context, userID string) (*models.Profile, error) {
	return s.clear(ctx, "services.ProfileService.ClearNote", GroupNote, userID, func(p *models.Profile, now time.Time) {
		clearNote(p, now)
	})
}

// ClearScreen resets the screen peek and deletes the stored screenshot.
func (s *ProfileService) ClearScreen(ctx context.Context, userID string) (*models.Profile, error) {
	return s.clear(ctx, "services.ProfileService.ClearScreen", GroupScreen, userID, func(p *models.Profile, now time.Time) {
		clearScreen(p, now)
	})
}

func (s *ProfileService) ClearCommand(ctx context.Context, userID string) (*models.Profile, error) {
	return s.clear(ctx, "services.ProfileService.ClearCommand", GroupCommand, userID, func(p *models.Profile, now time.Time) {
		clearCommand(p, now)
	})
}

// ClearAll resets every peek group and deletes the stored screenshot.
func (s *ProfileService) ClearAll(ctx context.Context, userID string) (*models.Profile, error) {
	return s.clear(ctx, "services.ProfileService.ClearAll", GroupAll, userID, func(p *models.Profile, now time.Time) {
		clearData(p, now)
		clearNote(p, now)
		clearScreen(p, now)
		clearCommand(p, now)
	})
}

func (s *ProfileService) clear(ctx context.Context, op, group, userID string, reset func(p *models.Profile, now time.Time)) (*models.Profile, error) {
	var oldRef string
	p, _, err := s.mutate(ctx, op, userID, func(p *models.Profile, now time.Time) bool {
		before := p.Screenshot
		reset(p, now)
		if p.Screenshot == "" {
			oldRef = before
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	if oldRef != "" {
		s.removeScreenshot(ctx, userID, oldRef)
	}
	metrics.PeekUpdates.WithLabelValues(group, "clear").Inc()
	return p, nil
}

// Delete removes the profile with its credentials and subscriptions, then the
// stored screenshot.
func (s *ProfileService) Delete(ctx context.Context, userID string) error {
	const op = "services.ProfileService.Delete"

	if userID == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}

	unlock := s.lock(userID)
	defer unlock()

	p, err := s.store.Profile(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if p.Screenshot != "" {
		s.removeScreenshot(ctx, userID, p.Screenshot)
	}
	logging.Ctx(ctx).Info().Str("user", userID).Msg("profile deleted")
	return nil
}

// OpenScreenshot streams the user's stored screenshot. The caller closes the reader.
func (s *ProfileService) OpenScreenshot(ctx context.Context, userID string) (io.ReadCloser, string, error) {
	const op = "services.ProfileService.OpenScreenshot"

	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	if p.Screenshot == "" {
		return nil, "", fmt.Errorf("%s: %w", op, ErrScreenshotNotFound)
	}

	rc, contentType, err := s.shots.Open(ctx, p.Screenshot)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", fmt.Errorf("%s: %w", op, ErrScreenshotNotFound)
		}
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	return rc, contentType, nil
}

// Wait blocks until in-flight notifications are done.
func (s *ProfileService) Wait() {
	s.wg.Wait()
}

func (s *ProfileService) dispatch(ctx context.Context, group, userID, title, body string) {
	if s.notifier == nil {
		return
	}

	l := logging.Ctx(ctx).With().Str("user", userID).Str("group", group).Logger()
	pushCtx, cancel := context.WithTimeout(logging.WithContext(context.WithoutCancel(ctx), l), s.pushTimeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		rep := s.notifier.Notify(pushCtx, userID, title, body)
		metrics.RecordPushDispatch(group, rep.Delivered, rep.Failed, rep.Malformed)
		if rep.Failed > 0 || rep.Malformed > 0 {
			l.Warn().
				Int("attempted", rep.Attempted).
				Int("failed", rep.Failed).
				Int("malformed", rep.Malformed).
				Msg("push dispatch incomplete")
		}
	}()
}

func (s *ProfileService) removeScreenshot(ctx context.Context, userID, ref string) {
	if err := s.shots.Remove(ctx, ref); err != nil {
		metrics.CleanupFailures.Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("user", userID).Str("ref", ref).Msg("screenshot cleanup failed")
	}
}

func (s *ProfileService) refreshDaysAlive(p *models.Profile) {
	p.DaysAlive = nil
	if days, ok := birthday.DaysAlive(p.BirthdayYear, p.BirthdayMonth, p.BirthdayDay, s.now()); ok {
		p.DaysAlive = &days
	}
}

// merge assigns v to dst when present and reports whether the value differed.
func merge(dst *string, v *string) bool {
	if v == nil || *dst == *v {
		return false
	}
	*dst = *v
	return true
}

func clearBirthday(p *models.Profile) {
	p.Birthday = ""
	p.BirthdayYear, p.BirthdayMonth, p.BirthdayDay = nil, nil, nil
	p.DaysAlive = nil
}

func clearData(p *models.Profile, now time.Time) {
	p.FirstName, p.LastName, p.JobTitle, p.PhoneNumber, p.Address = "", "", "", "", ""
	clearBirthday(p)
	p.DataUpdatedAt = &now
}

func clearNote(p *models.Profile, now time.Time) {
	p.NoteName, p.NoteBody = "", ""
	p.NoteUpdatedAt = &now
}

func clearScreen(p *models.Profile, now time.Time) {
	p.Contact, p.URL, p.Screenshot = "", "", ""
	p.ScreenUpdatedAt = &now
}

func clearCommand(p *models.Profile, now time.Time) {
	p.Command = ""
	p.CommandUpdatedAt = &now
}

func noteBody(p *models.Profile) string {
	if p.NoteName != "" {
		return p.NoteName
	}
	return truncate(p.NoteBody, 120)
}

func screenBody(p *models.Profile) string {
	switch {
	case p.Contact != "":
		return p.Contact
	case p.URL != "":
		return p.URL
	default:
		return "New screenshot"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
