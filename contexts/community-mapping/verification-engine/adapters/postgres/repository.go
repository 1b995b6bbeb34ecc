package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	domainerrors "wayfinder/contexts/community-mapping/verification-engine/domain/errors"
	"wayfinder/contexts/community-mapping/verification-engine/ports"
	"wayfinder/internal/shared/outbox"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultLockTimeout = 2 * time.Second

type Repository struct {
	db          *gorm.DB
	lockTimeout time.Duration
	logger      *slog.Logger
}

func NewRepository(db *gorm.DB, lockTimeout time.Duration, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &Repository{
		db:          db,
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

// AutoMigrate creates the verification tables. Production schemas are owned
// by migrations; this serves local runs and tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entityModel{},
		&entityVoteModel{},
		&voterProfileModel{},
		&outboxModel{},
		&eventDedupModel{},
	)
}

// WithinEntityTransaction locks the entity row with SELECT ... FOR UPDATE and
// runs fn against it. Lock waits are bounded by lock_timeout; lock and
// serialization failures surface as ErrTransactionConflict.
func (r *Repository) WithinEntityTransaction(
	ctx context.Context,
	entityID string,
	fn func(ctx context.Context, tx ports.EntityTx) error,
) error {
	entityID = strings.TrimSpace(entityID)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			statement := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if err := tx.Exec(statement).Error; err != nil {
				return err
			}
		}

		var row entityModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("entity_id = ?", entityID).
			First(&row).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrEntityNotFound
			}
			return err
		}
		var voteRows []entityVoteModel
		if err := tx.Where("entity_id = ?", entityID).
			Order("first_cast_at ASC, voter_id ASC").
			Find(&voteRows).
			Error; err != nil {
			return err
		}

		entity := row.toEntity(voteRows)
		return fn(ctx, &entityTx{
			db:       tx,
			repo:     r,
			entity:   entity,
			original: entity.Ledger.Clone(),
		})
	})
	if err == nil {
		return nil
	}
	if isLockConflict(err) {
		return domainerrors.ErrTransactionConflict
	}
	if isDomainError(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil || isQueryCanceled(err) {
		// The caller stopped waiting; the transaction rolled back and may be retried.
		if ctxErr == nil {
			ctxErr = context.Canceled
		}
		return fmt.Errorf("%w: %w", domainerrors.ErrTransactionConflict, ctxErr)
	}
	return r.logError("verification_repo_entity_transaction_failed", err, "entity_id", entityID)
}

type entityTx struct {
	db       *gorm.DB
	repo     *Repository
	entity   entities.VotableEntity
	original entities.Ledger
	appended int
}

func (t *entityTx) Entity() entities.VotableEntity {
	entity := t.entity
	entity.Ledger = t.entity.Ledger.Clone()
	return entity
}

func (t *entityTx) GetVoterProfile(ctx context.Context, userID string) (entities.VoterProfile, error) {
	var row voterProfileModel
	err := t.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VoterProfile{}, domainerrors.ErrVoterNotFound
		}
		return entities.VoterProfile{}, err
	}
	return row.toEntity(), nil
}

// SaveEntity writes the entity row guarded by its version and upserts only
// ledger entries that changed inside this transaction.
func (t *entityTx) SaveEntity(ctx context.Context, entity entities.VotableEntity) error {
	if strings.TrimSpace(entity.EntityID) != t.entity.EntityID {
		return domainerrors.ErrEntityNotFound
	}
	update := t.db.WithContext(ctx).
		Model(&entityModel{}).
		Where("entity_id = ? AND version = ?", t.entity.EntityID, t.entity.Version).
		Updates(map[string]any{
			"status":           string(entity.Status),
			"total_weight":     entity.Aggregate.TotalWeight,
			"yes_weight":       entity.Aggregate.YesWeight,
			"no_weight":        entity.Aggregate.NoWeight,
			"confidence_score": entity.Aggregate.ConfidenceScore,
			"version":          entity.Version,
			"updated_at":       entity.UpdatedAt.UTC(),
			"verified_at":      normalizeOptionalTime(entity.VerifiedAt),
		})
	if update.Error != nil {
		return update.Error
	}
	if update.RowsAffected == 0 {
		return domainerrors.ErrTransactionConflict
	}

	for _, vote := range entity.Ledger.Votes() {
		if previous, ok := t.original.Get(vote.VoterID); ok && sameVote(previous, vote) {
			continue
		}
		row := entityVoteModelFromVote(entity.EntityID, vote)
		if err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "entity_id"}, {Name: "voter_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"choice":  row.Choice,
				"weight":  row.Weight,
				"cast_at": row.CastAt,
			}),
		}).Create(&row).Error; err != nil {
			return err
		}
	}

	t.entity = entity
	t.entity.Ledger = entity.Ledger.Clone()
	t.original = entity.Ledger.Clone()
	return nil
}

// IncrementVerifiedCount bumps the counter matching kind, creating the
// profile row when the identity projection has not delivered it yet.
func (t *entityTx) IncrementVerifiedCount(ctx context.Context, userID string, kind entities.EntityKind) error {
	column := "verified_landmark_count"
	row := voterProfileModel{UserID: strings.TrimSpace(userID)}
	switch kind {
	case entities.EntityKindLandmark:
		row.VerifiedLandmarkCount = 1
	case entities.EntityKindRoute:
		column = "verified_route_count"
		row.VerifiedRouteCount = 1
	default:
		return domainerrors.ErrInvalidEntityInput
	}
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			column: gorm.Expr(voterProfileModel{}.TableName() + "." + column + " + 1"),
		}),
	}).Create(&row).Error
}

func (t *entityTx) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	if err := t.repo.appendOutbox(ctx, t.db, envelope, t.appended); err != nil {
		return err
	}
	t.appended++
	return nil
}

func (r *Repository) GetEntity(ctx context.Context, entityID string) (entities.VotableEntity, error) {
	entityID = strings.TrimSpace(entityID)
	var row entityModel
	err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VotableEntity{}, domainerrors.ErrEntityNotFound
		}
		return entities.VotableEntity{}, r.logError("verification_repo_get_entity_failed", err, "entity_id", entityID)
	}
	var voteRows []entityVoteModel
	if err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("first_cast_at ASC, voter_id ASC").
		Find(&voteRows).
		Error; err != nil {
		return entities.VotableEntity{}, r.logError("verification_repo_get_entity_votes_failed", err, "entity_id", entityID)
	}
	return row.toEntity(voteRows), nil
}

func (r *Repository) ListEntities(ctx context.Context, filter ports.EntityFilter) ([]entities.VotableEntity, error) {
	query := r.db.WithContext(ctx).Model(&entityModel{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", string(filter.Kind))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []entityModel
	if err := query.Order("created_at ASC, entity_id ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("verification_repo_list_entities_failed", err,
			"kind", string(filter.Kind),
			"status", string(filter.Status),
		)
	}
	if len(rows) == 0 {
		return []entities.VotableEntity{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.EntityID)
	}
	var voteRows []entityVoteModel
	if err := r.db.WithContext(ctx).
		Where("entity_id IN ?", ids).
		Order("first_cast_at ASC, voter_id ASC").
		Find(&voteRows).
		Error; err != nil {
		return nil, r.logError("verification_repo_list_entity_votes_failed", err, "entities", len(ids))
	}
	votesByEntity := make(map[string][]entityVoteModel, len(rows))
	for _, vote := range voteRows {
		votesByEntity[vote.EntityID] = append(votesByEntity[vote.EntityID], vote)
	}

	items := make([]entities.VotableEntity, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity(votesByEntity[row.EntityID]))
	}
	return items, nil
}

func (r *Repository) CreateEntity(ctx context.Context, entity entities.VotableEntity) (bool, error) {
	row := entityModelFromEntity(entity)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return false, domainerrors.ErrEntityConflict
		}
		return false, r.logError("verification_repo_create_entity_failed", create.Error, "entity_id", row.EntityID)
	}
	if create.RowsAffected > 0 {
		return true, nil
	}

	var existing entityModel
	if err := r.db.WithContext(ctx).
		Where("entity_id = ?", row.EntityID).
		First(&existing).Error; err != nil {
		return false, r.logError("verification_repo_create_entity_load_existing_failed", err, "entity_id", row.EntityID)
	}
	if existing.Kind != row.Kind || existing.CreatedBy != row.CreatedBy || existing.Title != row.Title {
		return false, domainerrors.ErrEntityConflict
	}
	return false, nil
}

// UpsertVoterProfile stores the identity projection of a voter.
func (r *Repository) UpsertVoterProfile(ctx context.Context, profile entities.VoterProfile) error {
	row := voterProfileModelFromEntity(profile)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"is_community_leader":     row.IsCommunityLeader,
			"verified_landmark_count": row.VerifiedLandmarkCount,
			"verified_route_count":    row.VerifiedRouteCount,
			"reputation_score":        row.ReputationScore,
		}),
	}).Create(&row).Error; err != nil {
		return r.logError("verification_repo_upsert_voter_profile_failed", err, "user_id", row.UserID)
	}
	return nil
}

func (r *Repository) GetVoterProfile(ctx context.Context, userID string) (entities.VoterProfile, error) {
	var row voterProfileModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VoterProfile{}, domainerrors.ErrVoterNotFound
		}
		return entities.VoterProfile{}, r.logError("verification_repo_get_voter_profile_failed", err, "user_id", strings.TrimSpace(userID))
	}
	return row.toEntity(), nil
}

func (r *Repository) appendOutbox(ctx context.Context, db *gorm.DB, envelope ports.EventEnvelope, sequence int) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("verification_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outbox.StatusPending,
		Sequence:     sequence,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return create.Error
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return err
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrEventConflict
	}
	return nil
}

// ListPendingOutbox breaks created_at ties by sequence so events of one vote
// keep their append order.
func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	limit = outbox.ResolveBatchSize(limit)
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC, sequence ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("verification_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outbox.StatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("verification_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrOutboxNotFound
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("verification_repo_reserve_event_failed", create.Error,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if create.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash").
		Where("event_id = ?", row.EventID).
		First(&existing).Error; err != nil {
		return false, r.logError("verification_repo_reserve_event_load_existing_failed", err,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrEventConflict
	}
	return true, nil
}

func (r *Repository) ReleaseEvent(ctx context.Context, eventID string) error {
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", strings.TrimSpace(eventID)).
		Delete(&eventDedupModel{}).Error; err != nil {
		return r.logError("verification_repo_release_event_failed", err,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "community-mapping/verification-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("verification repository operation failed", fields...)
	return err
}

// UUIDGenerator issues event and outbox ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(context.Context) (string, error) {
	return uuid.NewString(), nil
}

func sameVote(a entities.Vote, b entities.Vote) bool {
	return a.Choice == b.Choice && a.Weight == b.Weight && a.CastAt.Equal(b.CastAt)
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domainerrors.ErrInvalidVote,
		domainerrors.ErrInvalidEntityInput,
		domainerrors.ErrEntityNotFound,
		domainerrors.ErrVoterNotFound,
		domainerrors.ErrSelfVoteForbidden,
		domainerrors.ErrTransactionConflict,
		domainerrors.ErrEntityConflict,
		domainerrors.ErrEventConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// isLockConflict matches lock_not_available, serialization_failure and
// deadlock_detected.
func isLockConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "55P03", "40001", "40P01":
		return true
	default:
		return false
	}
}

// isQueryCanceled matches query_canceled, raised when pgx cancels a
// statement whose context expired.
func isQueryCanceled(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "57014"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.EntityTransactor = (*Repository)(nil)
var _ ports.EntityReader = (*Repository)(nil)
var _ ports.EntityRegistry = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
var _ ports.IDGenerator = UUIDGenerator{}
