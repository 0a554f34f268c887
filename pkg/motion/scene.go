package motion

import "sync"

// Scene is an in-memory set of named objects that implements Actuator.
// It stands in for the host's 3D scene.
type Scene struct {
	mu      sync.RWMutex
	objects map[string]Vec3
}

// NewScene creates an empty scene.
func NewScene() *Scene {
	return &Scene{objects: make(map[string]Vec3)}
}

// Spawn adds (or moves) an object.
func (s *Scene) Spawn(name string, pos Vec3) {
	s.mu.Lock()
	s.objects[name] = pos
	s.mu.Unlock()
}

// Position returns an object's position.
func (s *Scene) Position(name string) (Vec3, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.objects[name]
	return p, ok
}

// ApplyRelative moves an object by delta.
func (s *Scene) ApplyRelative(name string, delta Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.objects[name]
	if !ok {
		return ErrObjectNotFound
	}
	s.objects[name] = p.Add(delta)
	return nil
}

// ApplyAbsolute sets an object's position.
func (s *Scene) ApplyAbsolute(name string, pos Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; !ok {
		return ErrObjectNotFound
	}
	s.objects[name] = pos
	return nil
}

var _ Actuator = (*Scene)(nil)
