package channel

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Section groups issues for operators
type Section string

const (
	SectionAvailability Section = "availability"
	SectionRestriction  Section = "restriction"
	SectionPricelist    Section = "pricelist"
	SectionRoom         Section = "room"
	SectionReservation  Section = "reservation"
	SectionListing      Section = "listing"
	SectionCalendar     Section = "calendar"
	SectionGeneral      Section = "general"
)

// Issue is an operator-visible record of a terminal synchronization failure.
// It stays open until acknowledged.
type Issue struct {
	ID             uuid.UUID
	BackendID      string
	Section        Section
	Message        string
	InternalID     *uuid.UUID
	ExternalID     string
	DateFrom       *time.Time
	DateTo         *time.Time
	ChannelMessage string
	CreatedAt      time.Time
	AcknowledgedAt *time.Time
}

// NewIssue creates an open issue
func NewIssue(backendID string, section Section, message string) *Issue {
	return &Issue{
		ID:        uuid.New(),
		BackendID: backendID,
		Section:   section,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

// WithInternal links the issue to the affected internal record
func (i *Issue) WithInternal(id uuid.UUID) *Issue {
	if id != uuid.Nil {
		i.InternalID = &id
	}
	return i
}

// WithExternal records the external id involved
func (i *Issue) WithExternal(id string) *Issue {
	i.ExternalID = id
	return i
}

// WithDates records the affected date range
func (i *Issue) WithDates(r DateRange) *Issue {
	from, to := r.From, r.To
	i.DateFrom = &from
	i.DateTo = &to
	return i
}

// WithError attaches the remote diagnostic carried by err, if any
func (i *Issue) WithError(err error) *Issue {
	if raw := RawMessage(err); raw != "" {
		i.ChannelMessage = raw
	}
	return i
}

// Acknowledge closes the issue
func (i *Issue) Acknowledge(at time.Time) {
	if i.AcknowledgedAt == nil {
		i.AcknowledgedAt = &at
	}
}

// IsOpen reports whether the issue awaits operator action
func (i *Issue) IsOpen() bool {
	return i.AcknowledgedAt == nil
}

// IssueFilter narrows issue listings
type IssueFilter struct {
	BackendID  string
	Section    Section
	InternalID *uuid.UUID
	OpenOnly   bool
	Page       int
	PageSize   int
}

// IssueRepository persists issues
type IssueRepository interface {
	Create(ctx context.Context, issue *Issue) error
	FindByID(ctx context.Context, id uuid.UUID) (*Issue, error)
	List(ctx context.Context, filter IssueFilter) ([]*Issue, int64, error)
	CountOpenBySection(ctx context.Context, backendID string) (map[Section]int64, error)
	Acknowledge(ctx context.Context, id uuid.UUID, at time.Time) error
}

// IssueNotifier announces newly raised issues to operator tooling
type IssueNotifier interface {
	IssueRaised(ctx context.Context, issue *Issue) error
}
