package scene

import "go.uber.org/zap"

// SceneBuilderOption is a functional option for configuring a Scene via NewScene.
type SceneBuilderOption func(*scene)

// WithLogger sets the logger used for scene diagnostics.
//
// Parameters:
//   - logger: the zap logger; nil keeps the no-op default
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLogger(logger *zap.Logger) SceneBuilderOption {
	return func(s *scene) {
		if logger != nil {
			s.logger = logger.Named("scene")
		}
	}
}

// WithEntities spawns the given entities, in order, during construction.
//
// Parameters:
//   - entities: the entities to spawn
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithEntities(entities ...Entity) SceneBuilderOption {
	return func(s *scene) {
		for _, e := range entities {
			s.spawnLocked(e)
		}
	}
}
