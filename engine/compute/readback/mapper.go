package readback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/tagged_buffer"
	"go.uber.org/zap"
)

// ErrMapTimeout is returned when a buffer map does not complete within the mapper's timeout.
var ErrMapTimeout = errors.New("readback: buffer map timed out")

// DefaultTimeout bounds a buffer map when no timeout is configured.
const DefaultTimeout = 2 * time.Second

// MapSource performs a host read of a device buffer. Implementations block until the device has
// finished all queued work touching the buffer, or ctx ends, and must release the mapping before
// returning in either case.
type MapSource interface {
	MapRead(ctx context.Context, key string, size uint64) ([]byte, error)
}

// mapper is the implementation of the Mapper interface.
type mapper struct {
	mu       sync.Mutex
	src      MapSource
	inflight map[string]chan struct{}

	strict  bool
	timeout time.Duration
	logger  *zap.Logger
}

// Mapper serializes host reads of device buffers so that at most one map is outstanding per buffer.
// In strict mode a second concurrent map of the same buffer panics instead of waiting.
type Mapper interface {
	// MapRead maps a device buffer for host read and returns its contents as words.
	//
	// Parameters:
	//   - ctx: bounds the wait for any in-flight map and for the device
	//   - key: the device buffer's key
	//   - words: the number of words to read
	//
	// Returns:
	//   - []uint32: the buffer contents
	//   - error: ErrMapTimeout, a context error, or the source's map error
	MapRead(ctx context.Context, key string, words int) ([]uint32, error)

	// InFlight reports whether a map of the buffer is currently outstanding.
	InFlight(key string) bool
}

var _ Mapper = &mapper{}

// NewMapper creates a Mapper reading through src.
//
// Parameters:
//   - src: the device buffer source
//   - options: functional options to further configure the mapper
//
// Returns:
//   - Mapper: the mapper
func NewMapper(src MapSource, options ...MapperBuilderOption) Mapper {
	m := &mapper{
		src:      src,
		inflight: make(map[string]chan struct{}),
		timeout:  DefaultTimeout,
		logger:   zap.NewNop(),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

func (m *mapper) InFlight(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[key]
	return ok
}

func (m *mapper) MapRead(ctx context.Context, key string, words int) ([]uint32, error) {
	done, err := m.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer m.release(key, done)

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	b, err := m.src.MapRead(ctx, key, uint64(words)*4)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.logger.Error("buffer map timed out", zap.String("buffer", key), zap.Duration("timeout", m.timeout))
			return nil, fmt.Errorf("%w: %s after %s", ErrMapTimeout, key, m.timeout)
		}
		return nil, fmt.Errorf("failed to map buffer %s: %w", key, err)
	}
	m.logger.Debug("buffer mapped", zap.String("buffer", key), zap.Int("bytes", len(b)), zap.Duration("wait", time.Since(start)))

	return tagged_buffer.BytesToWords(b), nil
}

// acquire claims the buffer, waiting out any in-flight map unless the mapper is strict.
func (m *mapper) acquire(ctx context.Context, key string) (chan struct{}, error) {
	m.mu.Lock()
	for {
		prev, busy := m.inflight[key]
		if !busy {
			break
		}
		if m.strict {
			m.mu.Unlock()
			panic(fmt.Sprintf("readback: buffer %s mapped while a previous map is outstanding", key))
		}
		m.mu.Unlock()
		m.logger.Warn("buffer map already in flight, waiting", zap.String("buffer", key))
		select {
		case <-prev:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.mu.Lock()
	}
	done := make(chan struct{})
	m.inflight[key] = done
	m.mu.Unlock()
	return done, nil
}

func (m *mapper) release(key string, done chan struct{}) {
	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
	close(done)
}
