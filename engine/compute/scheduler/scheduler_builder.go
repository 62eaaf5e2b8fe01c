package scheduler

import "go.uber.org/zap"

// SchedulerBuilderOption is a functional option used to configure a Scheduler during construction.
type SchedulerBuilderOption func(*scheduler)

// WithLogger sets the logger. The scheduler logs under the "scheduler" name.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - SchedulerBuilderOption: a function that sets the logger
func WithLogger(logger *zap.Logger) SchedulerBuilderOption {
	return func(s *scheduler) {
		if logger != nil {
			s.logger = logger.Named("scheduler")
		}
	}
}
