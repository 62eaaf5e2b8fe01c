package pipeline

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithLabel overrides the debug label given to device objects created for this pipeline.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - PipelineBuilderOption: a function that sets the label for this pipeline
func WithLabel(label string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.label = label
	}
}

// WithWorkgroupSize overrides the workgroup size reflected from the shader.
//
// Parameters:
//   - size: the x, y, z workgroup size
//
// Returns:
//   - PipelineBuilderOption: a function that sets the workgroup size for this pipeline
func WithWorkgroupSize(size [3]uint32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.workgroupSize = size
	}
}
