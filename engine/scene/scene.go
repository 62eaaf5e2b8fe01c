package scene

import (
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

type record struct {
	transform Transform
	particle  *Particle
	portal    *Portal
	edges     *Edges
	body      *Body
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu *sync.RWMutex

	name   string
	nextID EntityID

	entities map[EntityID]*record
	// order holds live entity IDs in spawn order; iteration follows it so portal pairing is deterministic.
	order []EntityID

	logger *zap.Logger
}

// Scene is the live simulation state read by the extractors and written by the readback reconciler.
// Iterators walk entities in spawn order while holding a read lock, so callbacks must not call back
// into the Scene's mutating methods. Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Spawn adds an entity and returns its new ID.
	//
	// Parameters:
	//   - e: the entity's transform and components
	//
	// Returns:
	//   - EntityID: the assigned ID
	Spawn(e Entity) EntityID

	// Despawn removes an entity.
	//
	// Parameters:
	//   - id: the entity to remove
	//
	// Returns:
	//   - bool: true if the entity existed
	Despawn(id EntityID) bool

	// Count returns the number of live entities.
	Count() int

	// Transform returns an entity's transform.
	//
	// Parameters:
	//   - id: the entity to look up
	//
	// Returns:
	//   - Transform: the entity's transform
	//   - bool: false if the entity does not exist
	Transform(id EntityID) (Transform, bool)

	// SetTransform replaces an entity's transform.
	//
	// Parameters:
	//   - id: the entity to update
	//   - t: the new transform
	//
	// Returns:
	//   - bool: false if the entity does not exist
	SetTransform(id EntityID, t Transform) bool

	// Body returns an entity's Body component.
	//
	// Parameters:
	//   - id: the entity to look up
	//
	// Returns:
	//   - Body: the body component
	//   - bool: false if the entity does not exist or has no Body
	Body(id EntityID) (Body, bool)

	// SetBodyState writes a simulated position and velocity onto a body entity.
	//
	// Parameters:
	//   - id: the body entity
	//   - position: the new world-space position
	//   - velocity: the new velocity
	//
	// Returns:
	//   - bool: false if the entity no longer exists or has no Body
	SetBodyState(id EntityID, position, velocity mgl32.Vec3) bool

	// Particles calls fn for every particle entity in spawn order until fn returns false.
	Particles(fn func(id EntityID, t Transform, p Particle) bool)

	// Portals calls fn for every portal entity in spawn order until fn returns false.
	Portals(fn func(id EntityID, t Transform, p Portal) bool)

	// Edges calls fn for every edges entity in spawn order until fn returns false.
	Edges(fn func(id EntityID, t Transform, e Edges) bool)

	// Bodies calls fn for every body entity in spawn order until fn returns false.
	Bodies(fn func(id EntityID, t Transform, b Body) bool)
}

var _ Scene = &scene{}

// NewScene creates an empty Scene.
//
// Parameters:
//   - name: the name of the scene
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:       &sync.RWMutex{},
		name:     name,
		nextID:   1,
		entities: make(map[EntityID]*record),
		logger:   zap.NewNop(),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Spawn(e Entity) EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnLocked(e)
}

func (s *scene) spawnLocked(e Entity) EntityID {
	id := s.nextID
	s.nextID++

	s.entities[id] = &record{
		transform: e.Transform,
		particle:  clone(e.Particle),
		portal:    clone(e.Portal),
		edges:     clone(e.Edges),
		body:      clone(e.Body),
	}
	s.order = append(s.order, id)
	return id
}

func (s *scene) Despawn(id EntityID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[id]; !ok {
		return false
	}
	delete(s.entities, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	s.logger.Debug("entity despawned", zap.Uint64("id", uint64(id)))
	return true
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

func (s *scene) Transform(id EntityID) (Transform, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entities[id]
	if !ok {
		return Transform{}, false
	}
	return r.transform, true
}

func (s *scene) SetTransform(id EntityID, t Transform) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.entities[id]
	if !ok {
		return false
	}
	r.transform = t
	return true
}

func (s *scene) Body(id EntityID) (Body, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entities[id]
	if !ok || r.body == nil {
		return Body{}, false
	}
	return *r.body, true
}

func (s *scene) SetBodyState(id EntityID, position, velocity mgl32.Vec3) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.entities[id]
	if !ok || r.body == nil {
		return false
	}
	r.transform.Position = position
	r.body.Velocity = velocity
	return true
}

func (s *scene) Particles(fn func(id EntityID, t Transform, p Particle) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		r := s.entities[id]
		if r.particle != nil && !fn(id, r.transform, *r.particle) {
			return
		}
	}
}

func (s *scene) Portals(fn func(id EntityID, t Transform, p Portal) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		r := s.entities[id]
		if r.portal != nil && !fn(id, r.transform, *r.portal) {
			return
		}
	}
}

func (s *scene) Edges(fn func(id EntityID, t Transform, e Edges) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		r := s.entities[id]
		if r.edges != nil && !fn(id, r.transform, *r.edges) {
			return
		}
	}
}

func (s *scene) Bodies(fn func(id EntityID, t Transform, b Body) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		r := s.entities[id]
		if r.body != nil && !fn(id, r.transform, *r.body) {
			return
		}
	}
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
