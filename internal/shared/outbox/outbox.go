package outbox

// Outbox rows are persisted inside the same transaction as the entity write.
// The worker relay reads pending rows and publishes them to the bus.
const (
	StatusPending   = "pending"
	StatusPublished = "published"
)

// DefaultBatchSize bounds one relay cycle when the caller gives no limit.
const DefaultBatchSize = 100

// ResolveBatchSize applies DefaultBatchSize to non-positive limits.
func ResolveBatchSize(limit int) int {
	if limit <= 0 {
		return DefaultBatchSize
	}
	return limit
}
