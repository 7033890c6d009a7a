package models

import (
	"time"

	"github.com/sensus/peek/internal/birthday"
)

// Profile is the per-user record aggregating every peek. It is keyed by an opaque user id
// and persisted as one row/document by every storage backend.
type Profile struct {
	ID string `json:"id" bson:"user_id" gorm:"primaryKey"`

	// Data peek.
	FirstName     string `json:"first_name" bson:"first_name,omitempty"`
	LastName      string `json:"last_name" bson:"last_name,omitempty"`
	JobTitle      string `json:"job_title" bson:"job_title,omitempty"`
	PhoneNumber   string `json:"phone_number" bson:"phone_number,omitempty"`
	Address       string `json:"address" bson:"address,omitempty"`
	Birthday      string `json:"birthday" bson:"birthday,omitempty"`
	BirthdayYear  *int   `json:"birthday_year" bson:"birthday_year,omitempty"`
	BirthdayMonth *int   `json:"birthday_month" bson:"birthday_month,omitempty"`
	BirthdayDay   *int   `json:"birthday_day" bson:"birthday_day,omitempty"`
	DaysAlive     *int   `json:"days_alive" bson:"days_alive,omitempty"`

	// Note peek.
	NoteName string `json:"note_name" bson:"note_name,omitempty"`
	NoteBody string `json:"note_body" bson:"note_body,omitempty"`

	// Screen peek. Screenshot is a storage reference, never a public URL.
	Contact    string `json:"contact" bson:"contact,omitempty"`
	URL        string `json:"url" bson:"url,omitempty"`
	Screenshot string `json:"screenshot" bson:"screenshot,omitempty"`

	Command string `json:"command" bson:"command,omitempty"`

	DataUpdatedAt    *time.Time `json:"data_updated_at" bson:"data_updated_at,omitempty"`
	NoteUpdatedAt    *time.Time `json:"note_updated_at" bson:"note_updated_at,omitempty"`
	ScreenUpdatedAt  *time.Time `json:"screen_updated_at" bson:"screen_updated_at,omitempty"`
	CommandUpdatedAt *time.Time `json:"command_updated_at" bson:"command_updated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at" bson:"created_at" gorm:"autoCreateTime:false"`
	UpdatedAt        time.Time  `json:"updated_at" bson:"updated_at" gorm:"autoUpdateTime:false"`
}

// DataPeek is the identity/contact view of a profile.
type DataPeek struct {
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	JobTitle        string     `json:"job_title"`
	PhoneNumber     string     `json:"phone_number"`
	Address         string     `json:"address"`
	Birthday        string     `json:"birthday"`
	BirthdayDisplay string     `json:"birthday_display"`
	BirthdayYear    *int       `json:"birthday_year"`
	BirthdayMonth   *int       `json:"birthday_month"`
	BirthdayDay     *int       `json:"birthday_day"`
	DaysAlive       *int       `json:"days_alive"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

type NotePeek struct {
	NoteName  string     `json:"note_name"`
	NoteBody  string     `json:"note_body"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// ScreenPeek reports whether a screenshot is stored; the binary is served separately.
type ScreenPeek struct {
	Contact       string     `json:"contact"`
	URL           string     `json:"url"`
	HasScreenshot bool       `json:"has_screenshot"`
	UpdatedAt     *time.Time `json:"updated_at"`
}

type CommandPeek struct {
	Command   string     `json:"command"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// UpdateDataRequest is a partial update: nil fields are left untouched.
type UpdateDataRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	JobTitle    *string `json:"job_title"`
	PhoneNumber *string `json:"phone_number"`
	Address     *string `json:"address"`
	// Birthday accepts MM-DD, YYYY-MM-DD, DD-MM-YYYY or YYYY-MM ("/" also allowed).
	// An empty string clears the stored birthday.
	Birthday *string `json:"birthday"`
}

type UpdateNoteRequest struct {
	NoteName *string `json:"note_name"`
	NoteBody *string `json:"note_body"`
}

type UpdateScreenRequest struct {
	Contact *string `json:"contact"`
	URL     *string `json:"url"`
	// ScreenshotBase64 may be a bare base64 string or a data: URL.
	ScreenshotBase64 *string `json:"screenshot_base64"`
}

type UpdateCommandRequest struct {
	Command *string `json:"command"`
}

// DataView renders the data peek. BirthdayDisplay is "Mar 6 2008", "Mar 6", or the
// raw input when no day is known.
func (p *Profile) DataView() DataPeek {
	return DataPeek{
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		JobTitle:        p.JobTitle,
		PhoneNumber:     p.PhoneNumber,
		Address:         p.Address,
		Birthday:        p.Birthday,
		BirthdayDisplay: birthday.Format(p.BirthdayYear, p.BirthdayMonth, p.BirthdayDay, p.Birthday),
		BirthdayYear:    p.BirthdayYear,
		BirthdayMonth:   p.BirthdayMonth,
		BirthdayDay:     p.BirthdayDay,
		DaysAlive:       p.DaysAlive,
		UpdatedAt:       p.DataUpdatedAt,
	}
}

func (p *Profile) NoteView() NotePeek {
	return NotePeek{NoteName: p.NoteName, NoteBody: p.NoteBody, UpdatedAt: p.NoteUpdatedAt}
}

func (p *Profile) ScreenView() ScreenPeek {
	return ScreenPeek{
		Contact:       p.Contact,
		URL:           p.URL,
		HasScreenshot: p.Screenshot != "",
		UpdatedAt:     p.ScreenUpdatedAt,
	}
}

func (p *Profile) CommandView() CommandPeek {
	return CommandPeek{Command: p.Command, UpdatedAt: p.CommandUpdatedAt}
}
