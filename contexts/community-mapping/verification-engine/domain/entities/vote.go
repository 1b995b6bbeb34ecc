package entities

import "time"

// Vote is owned by the entity ledger. Weight is frozen at cast time; decay
// is applied when the ledger is aggregated.
type Vote struct {
	VoterID     string
	Choice      Choice
	Weight      float64
	CastAt      time.Time
	FirstCastAt time.Time
}

// Ledger keeps one vote per voter, keyed by voter id, and exposes the votes
// in first-cast order.
type Ledger struct {
	order []string
	votes map[string]Vote
}

func NewLedger(votes []Vote) Ledger {
	ledger := Ledger{
		order: make([]string, 0, len(votes)),
		votes: make(map[string]Vote, len(votes)),
	}
	for _, vote := range votes {
		ledger.Upsert(vote)
	}
	return ledger
}

// Upsert stores the vote for its voter. A re-vote replaces the previous entry
// in place and keeps the original FirstCastAt. It reports whether an entry
// was replaced.
func (l *Ledger) Upsert(vote Vote) bool {
	if l.votes == nil {
		l.votes = make(map[string]Vote)
	}
	existing, found := l.votes[vote.VoterID]
	if found {
		if !existing.FirstCastAt.IsZero() {
			vote.FirstCastAt = existing.FirstCastAt
		}
	} else {
		l.order = append(l.order, vote.VoterID)
	}
	if vote.FirstCastAt.IsZero() {
		vote.FirstCastAt = vote.CastAt
	}
	l.votes[vote.VoterID] = vote
	return found
}

func (l Ledger) Get(voterID string) (Vote, bool) {
	vote, ok := l.votes[voterID]
	return vote, ok
}

func (l Ledger) Len() int {
	return len(l.order)
}

// Votes returns a copy of the ledger as an ordered list.
func (l Ledger) Votes() []Vote {
	items := make([]Vote, 0, len(l.order))
	for _, voterID := range l.order {
		items = append(items, l.votes[voterID])
	}
	return items
}

// Clone returns an independent copy so staged transactional writes never
// leak into a shared ledger.
func (l Ledger) Clone() Ledger {
	return NewLedger(l.Votes())
}
