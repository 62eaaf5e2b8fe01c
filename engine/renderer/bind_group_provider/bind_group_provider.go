package bind_group_provider

import (
	"maps"
	"slices"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	mu *sync.RWMutex

	// label is a debug label added for convenience.
	label string

	// The following fields are GPU allocated resources and must be released when no longer needed.
	// They are populated by the renderer backend, not by user-creation.

	bindGroup       *wgpu.BindGroup
	bindGroupLayout *wgpu.BindGroupLayout
	// buffers holds every device buffer, bound or not, keyed by buffer key.
	buffers map[string]*wgpu.Buffer
	// bindings maps a binding index to the key of the buffer bound there.
	bindings map[int]string
	textures map[int]*wgpu.Texture
	// textureViews holds storage texture views keyed by binding index.
	textureViews map[int]*wgpu.TextureView
}

// BindGroupProvider holds the device resources of one compute bind group: named buffers, some of
// which are bound at a binding index, storage textures, and the bind group built over them.
// Buffers that are not bound, such as map-read staging buffers, are still owned and released here.
type BindGroupProvider interface {
	// Release releases every GPU resource held by this provider.
	Release()

	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// BindGroup returns the created bind group, nil until the backend builds it.
	//
	// Returns:
	//   - *wgpu.BindGroup: the bind group or nil
	BindGroup() *wgpu.BindGroup

	// BindGroupLayout returns the created bind group layout, nil until the backend builds it.
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the bind group layout or nil
	BindGroupLayout() *wgpu.BindGroupLayout

	// Buffer returns the buffer stored under key.
	//
	// Parameters:
	//   - key: the buffer key
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer or nil
	Buffer(key string) *wgpu.Buffer

	// BufferKeys returns every buffer key in sorted order.
	BufferKeys() []string

	// BoundBuffer returns the key of the buffer bound at binding.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - string: the buffer key
	//   - bool: false if no buffer is bound there
	BoundBuffer(binding int) (string, bool)

	// TextureView returns the storage texture view for a binding, or nil if not set.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - *wgpu.TextureView: the texture view or nil
	TextureView(binding int) *wgpu.TextureView

	// SetBindGroup stores the bind group, releasing any previous one.
	SetBindGroup(bg *wgpu.BindGroup)

	// SetBindGroupLayout stores the bind group layout, releasing any previous one.
	SetBindGroupLayout(bgl *wgpu.BindGroupLayout)

	// SetBuffer stores a buffer under key, releasing a previous buffer with the same key.
	//
	// Parameters:
	//   - key: the buffer key
	//   - buf: the buffer
	SetBuffer(key string, buf *wgpu.Buffer)

	// Bind records that the buffer stored under key is bound at binding.
	//
	// Parameters:
	//   - binding: the binding index
	//   - key: the buffer key
	Bind(binding int, key string)

	// SetTexture stores a storage texture and its view at a binding, releasing previous ones.
	//
	// Parameters:
	//   - binding: the binding index
	//   - tex: the texture
	//   - tv: the texture view
	SetTexture(binding int, tex *wgpu.Texture, tv *wgpu.TextureView)
}

var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates an empty provider.
//
// Parameters:
//   - label: a debug label used for the device objects the backend creates
//   - options: variadic list of BindGroupProviderOption functions
//
// Returns:
//   - BindGroupProvider: the new provider
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		mu:           &sync.RWMutex{},
		label:        label,
		buffers:      make(map[string]*wgpu.Buffer),
		bindings:     make(map[int]string),
		textures:     make(map[int]*wgpu.Texture),
		textureViews: make(map[int]*wgpu.TextureView),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup() *wgpu.BindGroup {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bindGroup
}

func (p *bindGroupProvider) BindGroupLayout() *wgpu.BindGroupLayout {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bindGroupLayout
}

func (p *bindGroupProvider) Buffer(key string) *wgpu.Buffer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.buffers[key]
}

func (p *bindGroupProvider) BufferKeys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Sorted(maps.Keys(p.buffers))
}

func (p *bindGroupProvider) BoundBuffer(binding int) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	key, ok := p.bindings[binding]
	return key, ok
}

func (p *bindGroupProvider) TextureView(binding int) *wgpu.TextureView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.textureViews[binding]
}

func (p *bindGroupProvider) SetBindGroup(bg *wgpu.BindGroup) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bindGroup != nil && p.bindGroup != bg {
		p.bindGroup.Release()
	}
	p.bindGroup = bg
}

func (p *bindGroupProvider) SetBindGroupLayout(bgl *wgpu.BindGroupLayout) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bindGroupLayout != nil && p.bindGroupLayout != bgl {
		p.bindGroupLayout.Release()
	}
	p.bindGroupLayout = bgl
}

func (p *bindGroupProvider) SetBuffer(key string, buf *wgpu.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.buffers[key]; ok && old != nil && old != buf {
		old.Release()
	}
	p.buffers[key] = buf
}

func (p *bindGroupProvider) Bind(binding int, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindings[binding] = key
}

func (p *bindGroupProvider) SetTexture(binding int, tex *wgpu.Texture, tv *wgpu.TextureView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old := p.textureViews[binding]; old != nil && old != tv {
		old.Release()
	}
	if old := p.textures[binding]; old != nil && old != tex {
		old.Release()
	}
	p.textures[binding] = tex
	p.textureViews[binding] = tv
}

func (p *bindGroupProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	if p.bindGroupLayout != nil {
		p.bindGroupLayout.Release()
		p.bindGroupLayout = nil
	}
	for key, buf := range p.buffers {
		if buf != nil {
			buf.Release()
		}
		delete(p.buffers, key)
	}
	for binding, tv := range p.textureViews {
		if tv != nil {
			tv.Release()
		}
		delete(p.textureViews, binding)
	}
	for binding, tex := range p.textures {
		if tex != nil {
			tex.Release()
		}
		delete(p.textures, binding)
	}
	clear(p.bindings)
}
