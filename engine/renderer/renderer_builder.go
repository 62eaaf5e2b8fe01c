package renderer

import "go.uber.org/zap"

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithBackend replaces the device backend. No adapter is requested when a backend is supplied.
//
// Parameters:
//   - b: the backend to use
//
// Returns:
//   - RendererBuilderOption: a function that applies the backend option to a renderer
func WithBackend(b RendererBackend) RendererBuilderOption {
	return func(r *renderer) {
		r.backend = b
	}
}

// WithLogger sets the logger. The renderer logs under the "renderer" name.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger option to a renderer
func WithLogger(logger *zap.Logger) RendererBuilderOption {
	return func(r *renderer) {
		if logger != nil {
			r.logger = logger.Named("renderer")
		}
	}
}

// WithCompileWorkers sets the number of workers compiling pipelines concurrently.
// Defaults to one less than the number of CPUs, at least one.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - RendererBuilderOption: a function that applies the worker count to a renderer
func WithCompileWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		if n > 0 {
			r.compileWorkers = n
		}
	}
}

// WithPreflight toggles offline WGSL validation of shaders before device compilation. Enabled by default.
//
// Parameters:
//   - enabled: true to preflight shaders
//
// Returns:
//   - RendererBuilderOption: a function that applies the preflight option to a renderer
func WithPreflight(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.preflight = enabled
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}
