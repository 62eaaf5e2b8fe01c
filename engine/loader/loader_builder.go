package loader

import "go.uber.org/zap"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithLogger sets the loader's logger.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger option to a loader
func WithLogger(logger *zap.Logger) LoaderBuilderOption {
	return func(l *loader) {
		if logger != nil {
			l.logger = logger.Named("loader")
		}
	}
}

// WithFixture pre-populates the fixture cache.
//
// Parameters:
//   - key: the cache key for the fixture
//   - f: the fixture to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the fixture option to a loader
func WithFixture(key string, f *Fixture) LoaderBuilderOption {
	return func(l *loader) {
		l.fixtureCache[key] = f
	}
}
