package extractor

import (
	"context"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/readback"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/tagged_buffer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/scene"
	"go.uber.org/zap"
)

// PhysicsFrame is one frame's physics extraction.
type PhysicsFrame struct {
	// Words is the finished tagged buffer.
	Words []uint32
	// Index maps each encoded body to its header slot in Words.
	Index readback.EntityIndex
	// Records is the number of bodies encoded.
	Records int
	// Rejected is the number of bodies left out because the buffer was full.
	Rejected int
	// Reconciled summarizes the readback applied before this frame was encoded.
	Reconciled readback.Stats
}

// physicsExtractor is the implementation of the PhysicsExtractor interface.
type physicsExtractor struct {
	mu sync.Mutex

	mapper      readback.Mapper
	readbackKey string
	capacity    int
	logger      *zap.Logger

	// prevIndex and prevWords describe the buffer most recently handed to the device.
	prevIndex readback.EntityIndex
	prevWords int
}

// PhysicsExtractor couples physics readback and extraction into one step so the entity index always
// describes the buffer it was built with.
type PhysicsExtractor interface {
	// Step applies the previous frame's device results to the store, then encodes the store's
	// current bodies into a fresh buffer and index. Results are read back only when reconcile is
	// true, which the caller sets when the previous buffer was actually dispatched.
	//
	// If the readback fails the previous index is kept and the error is returned; no new buffer is
	// built.
	//
	// Parameters:
	//   - ctx: bounds the wait on the device
	//   - store: the scene's dynamic bodies
	//   - reconcile: whether the previous buffer's results are available on the device
	//
	// Returns:
	//   - PhysicsFrame: the new buffer, index and counts
	//   - error: the readback error, if any
	Step(ctx context.Context, store BodyStore, reconcile bool) (PhysicsFrame, error)

	// Pending returns the number of entities in the index awaiting readback.
	Pending() int
}

var _ PhysicsExtractor = &physicsExtractor{}

// NewPhysicsExtractor creates a PhysicsExtractor that reads results through mapper from the device
// buffer named readbackKey.
//
// Parameters:
//   - mapper: the buffer mapper
//   - readbackKey: the host-mappable buffer holding the previous frame's results
//   - options: functional options to further configure the extractor
//
// Returns:
//   - PhysicsExtractor: the extractor
func NewPhysicsExtractor(mapper readback.Mapper, readbackKey string, options ...PhysicsExtractorBuilderOption) PhysicsExtractor {
	p := &physicsExtractor{
		mapper:      mapper,
		readbackKey: readbackKey,
		capacity:    DefaultPhysicsWords,
		logger:      zap.NewNop(),
	}

	for _, option := range options {
		option(p)
	}

	return p
}

func (p *physicsExtractor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prevIndex)
}

func (p *physicsExtractor) Step(ctx context.Context, store BodyStore, reconcile bool) (PhysicsFrame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stats readback.Stats
	if reconcile && len(p.prevIndex) > 0 {
		result, err := p.mapper.MapRead(ctx, p.readbackKey, p.prevWords)
		if err != nil {
			return PhysicsFrame{}, fmt.Errorf("failed to read back physics results: %w", err)
		}
		stats, err = readback.Reconcile(store, p.prevIndex, result)
		if err != nil {
			p.logger.Warn("physics results unreadable", zap.Error(err))
		}
		if stats.Missing > 0 {
			p.logger.Debug("bodies despawned before readback", zap.Int("missing", stats.Missing))
		}
		if stats.Invalid > 0 {
			p.logger.Warn("physics results out of bounds", zap.Int("invalid", stats.Invalid))
		}
	}

	enc := tagged_buffer.New(p.capacity)
	index := make(readback.EntityIndex)
	rejected := 0

	store.Bodies(func(id scene.EntityID, t scene.Transform, b scene.Body) bool {
		if rejected > 0 {
			rejected++
			return true
		}
		slot := enc.Records()
		err := enc.PushObject(TagBody, func(e *tagged_buffer.Encoder) {
			e.PushVec3(t.Position)
			e.PushVec3(b.Velocity)
		})
		if err != nil {
			rejected++
			return true
		}
		index[id] = slot
		return true
	})

	frame := PhysicsFrame{
		Index:      index,
		Records:    enc.Records(),
		Rejected:   rejected,
		Reconciled: stats,
	}
	frame.Words = enc.Finish()

	if rejected > 0 {
		p.logger.Warn("physics buffer full, bodies rejected",
			zap.Int("encoded", frame.Records),
			zap.Int("rejected", rejected),
			zap.Int("capacity_words", p.capacity),
		)
	}

	p.prevIndex = index
	p.prevWords = len(frame.Words)
	return frame, nil
}
