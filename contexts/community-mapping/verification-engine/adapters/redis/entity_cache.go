package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	"wayfinder/contexts/community-mapping/verification-engine/ports"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

const (
	defaultEntityCacheTTL = 30 * time.Second
	breakerName           = "entity_cache"
	// Generations outlive any read-through window by a wide margin.
	generationTTLFactor = 20
)

// populateScript writes the entity only if no invalidation happened since
// the caller read the generation. KEYS[1] entity, KEYS[2] generation;
// ARGV[1] generation seen, ARGV[2] payload, ARGV[3] ttl in ms.
var populateScript = goredis.NewScript(`
local current = redis.call("GET", KEYS[2])
if current == false then current = "0" end
if current ~= ARGV[1] then return 0 end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// CacheObserver receives lookup outcomes and breaker transitions.
type CacheObserver interface {
	ObserveLookup(result string)
	ObserveBreakerState(component string, state int)
}

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// EntityCache is a read-through cache in front of the entity store. It
// serves the map read model only; votes always go through the entity
// transaction and never read from here. Redis faults degrade to direct
// store reads.
//
// Every Invalidate bumps a per-entity generation. A miss records the
// generation before reading the store and populates only if it is
// unchanged, so a read that raced a committed vote never lands in Redis.
type EntityCache struct {
	rdb      goredis.Cmdable
	reader   ports.EntityReader
	ttl      time.Duration
	breaker  *gobreaker.CircuitBreaker
	group    singleflight.Group
	observer CacheObserver
	logger   *slog.Logger
}

func NewEntityCache(
	rdb goredis.Cmdable,
	reader ports.EntityReader,
	ttl time.Duration,
	observer CacheObserver,
	logger *slog.Logger,
) *EntityCache {
	if ttl <= 0 {
		ttl = defaultEntityCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &EntityCache{
		rdb:      rdb,
		reader:   reader,
		ttl:      ttl,
		observer: observer,
		logger:   logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("entity cache circuit breaker state changed",
				"event", "verification_cache_breaker_state_changed",
				"module", "community-mapping/verification-engine",
				"layer", "adapter",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if observer != nil {
				observer.ObserveBreakerState(name, int(to))
			}
		},
	})
	return c
}

// State reports the breaker state for health checks and tests.
func (c *EntityCache) State() gobreaker.State {
	return c.breaker.State()
}

func (c *EntityCache) GetEntity(ctx context.Context, entityID string) (entities.VotableEntity, error) {
	entity, result := c.getCached(ctx, entityID)
	c.observe(result)
	if result == "hit" {
		return entity, nil
	}

	// Concurrent misses for one entity share a single store read.
	value, err, _ := c.group.Do(entityID, func() (any, error) {
		generation, ok := c.generation(ctx, entityID)
		entity, err := c.reader.GetEntity(ctx, entityID)
		if err != nil {
			return entities.VotableEntity{}, err
		}
		if ok {
			c.writeCache(ctx, entity, generation)
		}
		return entity, nil
	})
	if err != nil {
		return entities.VotableEntity{}, err
	}
	return value.(entities.VotableEntity), nil
}

// ListEntities is not cached; filtered listings change with every vote.
func (c *EntityCache) ListEntities(ctx context.Context, filter ports.EntityFilter) ([]entities.VotableEntity, error) {
	return c.reader.ListEntities(ctx, filter)
}

func (c *EntityCache) Invalidate(ctx context.Context, entityID string) error {
	_, err := c.breaker.Execute(func() (any, error) {
		_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Incr(ctx, entityGenerationKey(entityID))
			pipe.PExpire(ctx, entityGenerationKey(entityID), c.ttl*generationTTLFactor)
			pipe.Del(ctx, entityCacheKey(entityID))
			return nil
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate entity cache: %w", err)
	}
	return nil
}

func (c *EntityCache) getCached(ctx context.Context, entityID string) (entities.VotableEntity, string) {
	raw, err := c.breaker.Execute(func() (any, error) {
		data, err := c.rdb.Get(ctx, entityCacheKey(entityID)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return []byte(nil), nil
		}
		return data, err
	})
	if err != nil {
		result := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "bypass"
		} else {
			c.logger.Warn("entity cache get failed",
				"event", "verification_cache_get_failed",
				"module", "community-mapping/verification-engine",
				"layer", "adapter",
				"entity_id", entityID,
				"error", err.Error(),
			)
		}
		return entities.VotableEntity{}, result
	}
	data, _ := raw.([]byte)
	if len(data) == 0 {
		return entities.VotableEntity{}, "miss"
	}

	var cached cachedEntity
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn("entity cache decode failed",
			"event", "verification_cache_decode_failed",
			"module", "community-mapping/verification-engine",
			"layer", "adapter",
			"entity_id", entityID,
			"error", err.Error(),
		)
		return entities.VotableEntity{}, "error"
	}
	return cached.toEntity(), "hit"
}

// generation returns the entity's invalidation counter; ok is false when it
// could not be read and the caller must not populate.
func (c *EntityCache) generation(ctx context.Context, entityID string) (string, bool) {
	raw, err := c.breaker.Execute(func() (any, error) {
		value, err := c.rdb.Get(ctx, entityGenerationKey(entityID)).Result()
		if errors.Is(err, goredis.Nil) {
			return "0", nil
		}
		return value, err
	})
	if err != nil {
		return "", false
	}
	return raw.(string), true
}

func (c *EntityCache) writeCache(ctx context.Context, entity entities.VotableEntity, generation string) {
	encoded, err := json.Marshal(newCachedEntity(entity))
	if err != nil {
		return
	}
	_, err = c.breaker.Execute(func() (any, error) {
		keys := []string{entityCacheKey(entity.EntityID), entityGenerationKey(entity.EntityID)}
		written, err := populateScript.Run(ctx, c.rdb, keys, generation, encoded, c.ttl.Milliseconds()).Int()
		if err == nil && written == 0 {
			c.logger.Debug("entity cache populate skipped after invalidation",
				"event", "verification_cache_set_skipped",
				"module", "community-mapping/verification-engine",
				"layer", "adapter",
				"entity_id", entity.EntityID,
			)
		}
		return nil, err
	})
	if err != nil && !errors.Is(err, gobreaker.ErrOpenState) {
		c.logger.Warn("entity cache populate failed",
			"event", "verification_cache_set_failed",
			"module", "community-mapping/verification-engine",
			"layer", "adapter",
			"entity_id", entity.EntityID,
			"error", err.Error(),
		)
	}
}

func (c *EntityCache) observe(result string) {
	if c.observer != nil {
		c.observer.ObserveLookup(result)
	}
}

// Both keys share a hash tag so the populate script stays on one slot.
func entityCacheKey(entityID string) string {
	return "verification:entity:{" + entityID + "}"
}

func entityGenerationKey(entityID string) string {
	return "verification:entity:{" + entityID + "}:gen"
}

type cachedVote struct {
	VoterID     string    `json:"voter_id"`
	Choice      string    `json:"choice"`
	Weight      float64   `json:"weight"`
	CastAt      time.Time `json:"cast_at"`
	FirstCastAt time.Time `json:"first_cast_at"`
}

type cachedEntity struct {
	EntityID        string       `json:"entity_id"`
	Kind            string       `json:"kind"`
	Title           string       `json:"title"`
	CreatedBy       string       `json:"created_by"`
	Status          string       `json:"status"`
	Votes           []cachedVote `json:"votes"`
	TotalWeight     float64      `json:"total_weight"`
	YesWeight       float64      `json:"yes_weight"`
	NoWeight        float64      `json:"no_weight"`
	ConfidenceScore float64      `json:"confidence_score"`
	Version         int64        `json:"version"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	VerifiedAt      *time.Time   `json:"verified_at,omitempty"`
}

func newCachedEntity(entity entities.VotableEntity) cachedEntity {
	votes := entity.Votes()
	items := make([]cachedVote, 0, len(votes))
	for _, vote := range votes {
		items = append(items, cachedVote{
			VoterID:     vote.VoterID,
			Choice:      string(vote.Choice),
			Weight:      vote.Weight,
			CastAt:      vote.CastAt,
			FirstCastAt: vote.FirstCastAt,
		})
	}
	return cachedEntity{
		EntityID:        entity.EntityID,
		Kind:            string(entity.Kind),
		Title:           entity.Title,
		CreatedBy:       entity.CreatedBy,
		Status:          string(entity.Status),
		Votes:           items,
		TotalWeight:     entity.Aggregate.TotalWeight,
		YesWeight:       entity.Aggregate.YesWeight,
		NoWeight:        entity.Aggregate.NoWeight,
		ConfidenceScore: entity.Aggregate.ConfidenceScore,
		Version:         entity.Version,
		CreatedAt:       entity.CreatedAt,
		UpdatedAt:       entity.UpdatedAt,
		VerifiedAt:      entity.VerifiedAt,
	}
}

func (c cachedEntity) toEntity() entities.VotableEntity {
	votes := make([]entities.Vote, 0, len(c.Votes))
	for _, vote := range c.Votes {
		votes = append(votes, entities.Vote{
			VoterID:     vote.VoterID,
			Choice:      entities.Choice(vote.Choice),
			Weight:      vote.Weight,
			CastAt:      vote.CastAt,
			FirstCastAt: vote.FirstCastAt,
		})
	}
	return entities.VotableEntity{
		EntityID:  c.EntityID,
		Kind:      entities.EntityKind(c.Kind),
		Title:     c.Title,
		CreatedBy: c.CreatedBy,
		Status:    entities.Status(c.Status),
		Ledger:    entities.NewLedger(votes),
		Aggregate: entities.Aggregate{
			TotalWeight:     c.TotalWeight,
			YesWeight:       c.YesWeight,
			NoWeight:        c.NoWeight,
			ConfidenceScore: c.ConfidenceScore,
		},
		Version:    c.Version,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		VerifiedAt: c.VerifiedAt,
	}
}
