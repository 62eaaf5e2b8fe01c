package grid

import "go.uber.org/zap"

// HierarchyBuilderOption is a functional option for configuring a Hierarchy via NewHierarchy.
type HierarchyBuilderOption func(*hierarchy)

// WithLogger sets the hierarchy's logger.
func WithLogger(logger *zap.Logger) HierarchyBuilderOption {
	return func(h *hierarchy) {
		if logger != nil {
			h.logger = logger.Named("grid")
		}
	}
}
