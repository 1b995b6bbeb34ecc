package entities

import "time"

type EntityKind string

const (
	EntityKindLandmark EntityKind = "landmark"
	EntityKindRoute    EntityKind = "route"
)

func (k EntityKind) Valid() bool {
	return k == EntityKindLandmark || k == EntityKindRoute
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
	StatusDisputed Status = "disputed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected, StatusDisputed:
		return true
	default:
		return false
	}
}

type Choice string

const (
	ChoiceYes Choice = "yes"
	ChoiceNo  Choice = "no"
)

func (c Choice) Valid() bool {
	return c == ChoiceYes || c == ChoiceNo
}

// Aggregate is derived from the ledger on every vote and never edited by hand.
type Aggregate struct {
	TotalWeight     float64
	YesWeight       float64
	NoWeight        float64
	ConfidenceScore float64
}

// VotableEntity is a landmark or route under community verification.
type VotableEntity struct {
	EntityID   string
	Kind       EntityKind
	Title      string
	CreatedBy  string
	Status     Status
	Ledger     Ledger
	Aggregate  Aggregate
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	VerifiedAt *time.Time
}

// NewPendingEntity builds a freshly submitted entity with an empty ledger.
func NewPendingEntity(entityID string, kind EntityKind, title string, createdBy string, now time.Time) VotableEntity {
	return VotableEntity{
		EntityID:  entityID,
		Kind:      kind,
		Title:     title,
		CreatedBy: createdBy,
		Status:    StatusPending,
		Ledger:    NewLedger(nil),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (e VotableEntity) Votes() []Vote {
	return e.Ledger.Votes()
}
