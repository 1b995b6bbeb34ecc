package application

import "log/slog"

// ModuleName tags every log record emitted by the verification engine.
const ModuleName = "community-mapping/verification-engine"

const (
	LayerApplication = "application"
	LayerWorker      = "worker"
)

// ScopedLogger binds the module and layer attributes so call sites only add
// event-specific fields. A nil logger falls back to the process default.
func ScopedLogger(logger *slog.Logger, layer string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("module", ModuleName, "layer", layer)
}
