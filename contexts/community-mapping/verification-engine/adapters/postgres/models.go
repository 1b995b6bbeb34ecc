package postgresadapter

import (
	"strings"
	"time"

	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
)

type entityModel struct {
	EntityID        string     `gorm:"column:entity_id;primaryKey"`
	Kind            string     `gorm:"column:kind;index"`
	Title           string     `gorm:"column:title"`
	CreatedBy       string     `gorm:"column:created_by"`
	Status          string     `gorm:"column:status;index"`
	TotalWeight     float64    `gorm:"column:total_weight"`
	YesWeight       float64    `gorm:"column:yes_weight"`
	NoWeight        float64    `gorm:"column:no_weight"`
	ConfidenceScore float64    `gorm:"column:confidence_score"`
	Version         int64      `gorm:"column:version"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
	VerifiedAt      *time.Time `gorm:"column:verified_at"`
}

func (entityModel) TableName() string {
	return "verification_entities"
}

func entityModelFromEntity(entity entities.VotableEntity) entityModel {
	return entityModel{
		EntityID:        strings.TrimSpace(entity.EntityID),
		Kind:            string(entity.Kind),
		Title:           entity.Title,
		CreatedBy:       strings.TrimSpace(entity.CreatedBy),
		Status:          string(entity.Status),
		TotalWeight:     entity.Aggregate.TotalWeight,
		YesWeight:       entity.Aggregate.YesWeight,
		NoWeight:        entity.Aggregate.NoWeight,
		ConfidenceScore: entity.Aggregate.ConfidenceScore,
		Version:         entity.Version,
		CreatedAt:       entity.CreatedAt.UTC(),
		UpdatedAt:       entity.UpdatedAt.UTC(),
		VerifiedAt:      normalizeOptionalTime(entity.VerifiedAt),
	}
}

func (m entityModel) toEntity(votes []entityVoteModel) entities.VotableEntity {
	items := make([]entities.Vote, 0, len(votes))
	for _, vote := range votes {
		items = append(items, vote.toEntity())
	}
	return entities.VotableEntity{
		EntityID:  m.EntityID,
		Kind:      entities.EntityKind(m.Kind),
		Title:     m.Title,
		CreatedBy: m.CreatedBy,
		Status:    entities.Status(m.Status),
		Ledger:    entities.NewLedger(items),
		Aggregate: entities.Aggregate{
			TotalWeight:     m.TotalWeight,
			YesWeight:       m.YesWeight,
			NoWeight:        m.NoWeight,
			ConfidenceScore: m.ConfidenceScore,
		},
		Version:    m.Version,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
		VerifiedAt: normalizeOptionalTime(m.VerifiedAt),
	}
}

type entityVoteModel struct {
	EntityID    string    `gorm:"column:entity_id;primaryKey"`
	VoterID     string    `gorm:"column:voter_id;primaryKey"`
	Choice      string    `gorm:"column:choice"`
	Weight      float64   `gorm:"column:weight"`
	CastAt      time.Time `gorm:"column:cast_at"`
	FirstCastAt time.Time `gorm:"column:first_cast_at"`
}

func (entityVoteModel) TableName() string {
	return "verification_votes"
}

func entityVoteModelFromVote(entityID string, vote entities.Vote) entityVoteModel {
	firstCastAt := vote.FirstCastAt
	if firstCastAt.IsZero() {
		firstCastAt = vote.CastAt
	}
	return entityVoteModel{
		EntityID:    strings.TrimSpace(entityID),
		VoterID:     strings.TrimSpace(vote.VoterID),
		Choice:      string(vote.Choice),
		Weight:      vote.Weight,
		CastAt:      vote.CastAt.UTC(),
		FirstCastAt: firstCastAt.UTC(),
	}
}

func (m entityVoteModel) toEntity() entities.Vote {
	return entities.Vote{
		VoterID:     m.VoterID,
		Choice:      entities.Choice(m.Choice),
		Weight:      m.Weight,
		CastAt:      m.CastAt.UTC(),
		FirstCastAt: m.FirstCastAt.UTC(),
	}
}

type voterProfileModel struct {
	UserID                string `gorm:"column:user_id;primaryKey"`
	IsCommunityLeader     bool   `gorm:"column:is_community_leader"`
	VerifiedLandmarkCount int    `gorm:"column:verified_landmark_count"`
	VerifiedRouteCount    int    `gorm:"column:verified_route_count"`
	ReputationScore       int    `gorm:"column:reputation_score"`
}

func (voterProfileModel) TableName() string {
	return "voter_profiles"
}

func voterProfileModelFromEntity(profile entities.VoterProfile) voterProfileModel {
	return voterProfileModel{
		UserID:                strings.TrimSpace(profile.UserID),
		IsCommunityLeader:     profile.IsCommunityLeader,
		VerifiedLandmarkCount: profile.VerifiedLandmarkCount,
		VerifiedRouteCount:    profile.VerifiedRouteCount,
		ReputationScore:       profile.ReputationScore,
	}
}

func (m voterProfileModel) toEntity() entities.VoterProfile {
	return entities.VoterProfile{
		UserID:                m.UserID,
		IsCommunityLeader:     m.IsCommunityLeader,
		VerifiedLandmarkCount: m.VerifiedLandmarkCount,
		VerifiedRouteCount:    m.VerifiedRouteCount,
		ReputationScore:       m.ReputationScore,
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	Sequence     int        `gorm:"column:sequence"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "verification_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "verification_event_dedup"
}
