package bind_group_provider

import "github.com/cogentcore/webgpu/wgpu"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBindGroupLayout sets the bind group layout for this provider.
//
// Parameters:
//   - bgl: the bind group layout to use for this provider
//
// Returns:
//   - BindGroupProviderOption: a function that sets the bind group layout for this provider
func WithBindGroupLayout(bgl *wgpu.BindGroupLayout) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.bindGroupLayout = bgl
	}
}

// WithBuffer stores a buffer under key and optionally binds it.
//
// Parameters:
//   - key: the buffer key
//   - binding: the binding index, negative for an unbound buffer
//   - buf: the buffer
//
// Returns:
//   - BindGroupProviderOption: a function that stores the buffer on this provider
func WithBuffer(key string, binding int, buf *wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.buffers[key] = buf
		if binding >= 0 {
			p.bindings[binding] = key
		}
	}
}
