package http

import "time"

// ErrorResponse is the failure body of every verification endpoint.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
}

type CastVoteRequest struct {
	Choice string `json:"choice"`
}

type AggregateDTO struct {
	TotalWeight     float64 `json:"totalWeight"`
	YesWeight       float64 `json:"yesWeight"`
	NoWeight        float64 `json:"noWeight"`
	ConfidenceScore float64 `json:"confidenceScore"`
}

type CastVoteResponse struct {
	Success     bool         `json:"success"`
	Status      string       `json:"status"`
	Aggregate   AggregateDTO `json:"aggregate"`
	VoterWeight float64      `json:"voterWeight"`
}

type VoteDTO struct {
	VoterID     string    `json:"voterId"`
	Choice      string    `json:"choice"`
	Weight      float64   `json:"weight"`
	CastAt      time.Time `json:"castAt"`
	FirstCastAt time.Time `json:"firstCastAt"`
}

type EntityResponse struct {
	EntityID   string       `json:"id"`
	Kind       string       `json:"kind"`
	Title      string       `json:"title"`
	CreatedBy  string       `json:"createdBy"`
	Status     string       `json:"status"`
	Aggregate  AggregateDTO `json:"aggregate"`
	VoteCount  int          `json:"voteCount"`
	Votes      []VoteDTO    `json:"votes,omitempty"`
	Version    int64        `json:"version"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
	VerifiedAt *time.Time   `json:"verifiedAt,omitempty"`
}

// RegisterEntityRequest opens a submitted landmark or route for voting.
// The submitter comes from the X-User-Id header.
type RegisterEntityRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type RegisterEntityResponse struct {
	Success bool           `json:"success"`
	Created bool           `json:"created"`
	Entity  EntityResponse `json:"entity"`
}

type ListEntitiesResponse struct {
	Items []EntityResponse `json:"items"`
}
