package domain

import (
	"strings"
	"time"
)

// DateLayout is the timestamp format written to ledger rows.
const DateLayout = "2006-01-02 15:04:05"

// DeliveryPending is the initial value of the ledger's "Email Sent" column.
const DeliveryPending = "Pending"

// UnknownName is used when an enrollee's name cannot be read.
const UnknownName = "N/A"

// Status of a captured participant
type Status string

const (
	StatusNew Status = "NEW"
)

// CourseJob pairs a course with the ledger worksheet its participants are written to
type CourseJob struct {
	CourseID string
	Ledger   string
}

// Participant is an enrollee this run registered, with the contact data read from their profile
type Participant struct {
	CourseID   string
	Name       string
	Email      string
	Status     Status
	CapturedAt time.Time
}

// NewParticipant builds a participant captured now. The name falls back to UnknownName.
func NewParticipant(courseID, name, email string, now time.Time) Participant {
	name = strings.TrimSpace(name)
	if name == "" {
		name = UnknownName
	}
	return Participant{
		CourseID:   courseID,
		Name:       name,
		Email:      strings.TrimSpace(email),
		Status:     StatusNew,
		CapturedAt: now,
	}
}

// HasEmail reports whether the participant carries a usable contact address
func (p Participant) HasEmail() bool {
	return p.Email != ""
}

// Row renders the participant as a ledger row:
// Course ID, Name, Email, Status, Date, Email Sent.
func (p Participant) Row() []string {
	return []string{
		p.CourseID,
		p.Name,
		p.Email,
		string(p.Status),
		p.CapturedAt.Format(DateLayout),
		DeliveryPending,
	}
}

// LedgerHeader is the header row of every course worksheet
var LedgerHeader = []string{"Course ID", "Name", "Email", "Status", "Date", "Email Sent"}

// EmailColumn is the zero-based index of the email column in LedgerHeader
const EmailColumn = 2

// EmailKey normalizes an address for duplicate detection
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
