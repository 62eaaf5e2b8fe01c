package readback

import (
	"time"

	"go.uber.org/zap"
)

// MapperBuilderOption is a functional option for configuring a Mapper via NewMapper.
type MapperBuilderOption func(*mapper)

// WithStrict makes a concurrent map of a buffer panic instead of waiting for the previous one.
//
// Parameters:
//   - strict: whether overlapping maps are a programming error
//
// Returns:
//   - MapperBuilderOption: option function to apply
func WithStrict(strict bool) MapperBuilderOption {
	return func(m *mapper) {
		m.strict = strict
	}
}

// WithTimeout bounds how long a single map may wait on the device. Zero disables the bound.
//
// Parameters:
//   - timeout: the map timeout
//
// Returns:
//   - MapperBuilderOption: option function to apply
func WithTimeout(timeout time.Duration) MapperBuilderOption {
	return func(m *mapper) {
		m.timeout = timeout
	}
}

// WithLogger sets the mapper's logger.
func WithLogger(logger *zap.Logger) MapperBuilderOption {
	return func(m *mapper) {
		if logger != nil {
			m.logger = logger.Named("readback")
		}
	}
}
