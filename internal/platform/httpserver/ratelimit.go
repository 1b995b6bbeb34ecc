package httpserver

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const voterLimiterExpiry = 5 * time.Minute

type voterBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// VoterLimiter keeps one token bucket per voter id. Idle buckets are swept
// after voterLimiterExpiry.
type VoterLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*voterBucket
	limit     rate.Limit
	burst     int
	clock     clockwork.Clock
	lastSweep time.Time
}

func NewVoterLimiter(ratePerSecond float64, burst int, clock clockwork.Clock) *VoterLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if burst < 1 {
		burst = 1
	}
	return &VoterLimiter{
		buckets:   make(map[string]*voterBucket),
		limit:     rate.Limit(ratePerSecond),
		burst:     burst,
		clock:     clock,
		lastSweep: clock.Now(),
	}
}

func (l *VoterLimiter) Allow(voterID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Sub(l.lastSweep) >= voterLimiterExpiry {
		for id, bucket := range l.buckets {
			if now.Sub(bucket.lastSeen) >= voterLimiterExpiry {
				delete(l.buckets, id)
			}
		}
		l.lastSweep = now
	}

	bucket, ok := l.buckets[voterID]
	if !ok {
		bucket = &voterBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[voterID] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

func (l *VoterLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
