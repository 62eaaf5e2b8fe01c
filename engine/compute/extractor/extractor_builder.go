package extractor

import "go.uber.org/zap"

// DecorationExtractorBuilderOption is a functional option for configuring a DecorationExtractor.
type DecorationExtractorBuilderOption func(*decorationExtractor)

// PhysicsExtractorBuilderOption is a functional option for configuring a PhysicsExtractor.
type PhysicsExtractorBuilderOption func(*physicsExtractor)

// WithDecorationCapacity sets the decoration buffer capacity in words.
//
// Parameters:
//   - words: the device buffer's capacity
//
// Returns:
//   - DecorationExtractorBuilderOption: option function to apply
func WithDecorationCapacity(words int) DecorationExtractorBuilderOption {
	return func(d *decorationExtractor) {
		d.capacity = words
	}
}

// WithPortalSlots sets the number of slots in the portal pairing table.
//
// Parameters:
//   - slots: the slot count, normally even
//
// Returns:
//   - DecorationExtractorBuilderOption: option function to apply
func WithPortalSlots(slots int) DecorationExtractorBuilderOption {
	return func(d *decorationExtractor) {
		d.portalSlots = slots
	}
}

// WithVoxelsPerMeter sets the grid resolution used to convert world positions.
func WithVoxelsPerMeter(vpm uint32) DecorationExtractorBuilderOption {
	return func(d *decorationExtractor) {
		d.voxelsPerMeter = vpm
	}
}

// WithDecorationLogger sets the decoration extractor's logger.
func WithDecorationLogger(logger *zap.Logger) DecorationExtractorBuilderOption {
	return func(d *decorationExtractor) {
		if logger != nil {
			d.logger = logger.Named("decoration")
		}
	}
}

// WithPhysicsCapacity sets the physics buffer capacity in words.
//
// Parameters:
//   - words: the device buffer's capacity
//
// Returns:
//   - PhysicsExtractorBuilderOption: option function to apply
func WithPhysicsCapacity(words int) PhysicsExtractorBuilderOption {
	return func(p *physicsExtractor) {
		p.capacity = words
	}
}

// WithPhysicsLogger sets the physics extractor's logger.
func WithPhysicsLogger(logger *zap.Logger) PhysicsExtractorBuilderOption {
	return func(p *physicsExtractor) {
		if logger != nil {
			p.logger = logger.Named("physics")
		}
	}
}
