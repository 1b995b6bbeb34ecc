package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	domainerrors "wayfinder/contexts/community-mapping/verification-engine/domain/errors"
	"wayfinder/contexts/community-mapping/verification-engine/ports"
	"wayfinder/internal/shared/outbox"

	"github.com/google/uuid"
)

const defaultLockTimeout = 2 * time.Second

type outboxRecord struct {
	message   ports.OutboxMessage
	sequence  int64
	published bool
}

type verifiedDelta struct {
	userID string
	kind   entities.EntityKind
}

type dedupRecord struct {
	payloadHash string
	expiresAt   time.Time
}

// Store is the in-memory adapter used by tests and local runs. Entity
// transactions serialize on a per-entity lock and stage every write until
// commit, so an aborted transaction leaves no trace.
type Store struct {
	mu sync.RWMutex

	entities   map[string]entities.VotableEntity
	profiles   map[string]entities.VoterProfile
	outbox     map[string]outboxRecord
	outboxSeq  int64
	eventDedup map[string]dedupRecord

	locksMu     sync.Mutex
	locks       map[string]chan struct{}
	lockTimeout time.Duration
}

func NewStore(seed []entities.VotableEntity) *Store {
	items := make(map[string]entities.VotableEntity, len(seed))
	for _, entity := range seed {
		items[strings.TrimSpace(entity.EntityID)] = cloneEntity(entity)
	}
	return &Store{
		entities:    items,
		profiles:    make(map[string]entities.VoterProfile),
		outbox:      make(map[string]outboxRecord),
		eventDedup:  make(map[string]dedupRecord),
		locks:       make(map[string]chan struct{}),
		lockTimeout: defaultLockTimeout,
	}
}

func (s *Store) SetLockTimeout(timeout time.Duration) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	s.lockTimeout = timeout
}

func (s *Store) SetEntity(entity entities.VotableEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[strings.TrimSpace(entity.EntityID)] = cloneEntity(entity)
}

func (s *Store) SetVoterProfile(profile entities.VoterProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile.UserID = strings.TrimSpace(profile.UserID)
	s.profiles[profile.UserID] = profile
}

func (s *Store) GetVoterProfile(_ context.Context, userID string) (entities.VoterProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[strings.TrimSpace(userID)]
	if !ok {
		return entities.VoterProfile{}, domainerrors.ErrVoterNotFound
	}
	return profile, nil
}

// LockEntity holds the entity lock until the returned release is called.
// Tests use it to simulate a long-running competing transaction.
func (s *Store) LockEntity(ctx context.Context, entityID string) (func(), error) {
	return s.acquire(ctx, strings.TrimSpace(entityID))
}

func (s *Store) WithinEntityTransaction(
	ctx context.Context,
	entityID string,
	fn func(ctx context.Context, tx ports.EntityTx) error,
) error {
	entityID = strings.TrimSpace(entityID)
	release, err := s.acquire(ctx, entityID)
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	entity, ok := s.entities[entityID]
	if ok {
		entity = cloneEntity(entity)
	}
	s.mu.RUnlock()
	if !ok {
		return domainerrors.ErrEntityNotFound
	}

	tx := &entityTx{
		store:  s,
		entity: entity,
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) acquire(ctx context.Context, entityID string) (func(), error) {
	s.locksMu.Lock()
	lock, ok := s.locks[entityID]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[entityID] = lock
	}
	timeout := s.lockTimeout
	s.locksMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-timer.C:
		return nil, domainerrors.ErrTransactionConflict
	case <-ctx.Done():
		// A caller that gave up waiting for the lock may retry.
		return nil, fmt.Errorf("%w: %w", domainerrors.ErrTransactionConflict, ctx.Err())
	}
}

func (s *Store) commit(tx *entityTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, staged := range tx.outbox {
		if existing, ok := s.outbox[staged.OutboxID]; ok && !bytes.Equal(existing.message.Payload, staged.Payload) {
			return domainerrors.ErrEventConflict
		}
	}
	if tx.saved {
		s.entities[tx.entity.EntityID] = cloneEntity(tx.entity)
	}
	// Deltas apply to the committed profile; transactions on other entities
	// may have bumped the same submitter since this one started.
	for _, delta := range tx.verified {
		profile, ok := s.profiles[delta.userID]
		if !ok {
			profile = entities.VoterProfile{UserID: delta.userID}
		}
		s.profiles[delta.userID] = profile.WithVerifiedContribution(delta.kind)
	}
	for _, staged := range tx.outbox {
		if _, ok := s.outbox[staged.OutboxID]; ok {
			continue
		}
		s.outboxSeq++
		s.outbox[staged.OutboxID] = outboxRecord{message: staged, sequence: s.outboxSeq}
	}
	return nil
}

type entityTx struct {
	store    *Store
	entity   entities.VotableEntity
	saved    bool
	verified []verifiedDelta
	outbox   []ports.OutboxMessage
}

func (tx *entityTx) Entity() entities.VotableEntity {
	return cloneEntity(tx.entity)
}

func (tx *entityTx) GetVoterProfile(ctx context.Context, userID string) (entities.VoterProfile, error) {
	userID = strings.TrimSpace(userID)
	profile, err := tx.store.GetVoterProfile(ctx, userID)
	staged := false
	for _, delta := range tx.verified {
		if delta.userID != userID {
			continue
		}
		if !staged && err != nil {
			profile, err = entities.VoterProfile{UserID: userID}, nil
		}
		staged = true
		profile = profile.WithVerifiedContribution(delta.kind)
	}
	return profile, err
}

func (tx *entityTx) SaveEntity(_ context.Context, entity entities.VotableEntity) error {
	if strings.TrimSpace(entity.EntityID) != tx.entity.EntityID {
		return domainerrors.ErrEntityNotFound
	}
	tx.entity = cloneEntity(entity)
	tx.saved = true
	return nil
}

// IncrementVerifiedCount creates an empty profile for a submitter the
// identity projection has not delivered yet.
func (tx *entityTx) IncrementVerifiedCount(_ context.Context, userID string, kind entities.EntityKind) error {
	tx.verified = append(tx.verified, verifiedDelta{userID: strings.TrimSpace(userID), kind: kind})
	return nil
}

func (tx *entityTx) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	message, err := newOutboxMessage(envelope)
	if err != nil {
		return err
	}
	tx.outbox = append(tx.outbox, message)
	return nil
}

func (s *Store) GetEntity(_ context.Context, entityID string) (entities.VotableEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[strings.TrimSpace(entityID)]
	if !ok {
		return entities.VotableEntity{}, domainerrors.ErrEntityNotFound
	}
	return cloneEntity(entity), nil
}

func (s *Store) ListEntities(_ context.Context, filter ports.EntityFilter) ([]entities.VotableEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.VotableEntity, 0, len(s.entities))
	for _, entity := range s.entities {
		if filter.Kind != "" && entity.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && entity.Status != filter.Status {
			continue
		}
		items = append(items, cloneEntity(entity))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].EntityID < items[j].EntityID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (s *Store) CreateEntity(_ context.Context, entity entities.VotableEntity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entityID := strings.TrimSpace(entity.EntityID)
	if existing, ok := s.entities[entityID]; ok {
		if existing.Kind == entity.Kind && existing.CreatedBy == entity.CreatedBy && existing.Title == entity.Title {
			return false, nil
		}
		return false, domainerrors.ErrEntityConflict
	}
	s.entities[entityID] = cloneEntity(entity)
	return true, nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = outbox.ResolveBatchSize(limit)
	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].sequence < rows[j].sequence
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.message)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrOutboxNotFound
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) ReserveEvent(
	_ context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(eventID)
	existing, ok := s.eventDedup[key]
	if ok {
		if !existing.expiresAt.IsZero() && time.Now().UTC().After(existing.expiresAt.UTC()) {
			delete(s.eventDedup, key)
		} else {
			if existing.payloadHash != strings.TrimSpace(payloadHash) {
				return false, domainerrors.ErrEventConflict
			}
			return true, nil
		}
	}

	s.eventDedup[key] = dedupRecord{
		payloadHash: strings.TrimSpace(payloadHash),
		expiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

func (s *Store) ReleaseEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.eventDedup, strings.TrimSpace(eventID))
	return nil
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func newOutboxMessage(envelope ports.EventEnvelope) (ports.OutboxMessage, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return ports.OutboxMessage{}, err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return ports.OutboxMessage{
		OutboxID:     outboxID,
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		CreatedAt:    createdAt,
	}, nil
}

func cloneEntity(entity entities.VotableEntity) entities.VotableEntity {
	entity.Ledger = entity.Ledger.Clone()
	if entity.VerifiedAt != nil {
		verifiedAt := *entity.VerifiedAt
		entity.VerifiedAt = &verifiedAt
	}
	return entity
}
