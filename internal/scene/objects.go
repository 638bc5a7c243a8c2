package scene

import (
	"fmt"
	"maps"
	"sort"

	"github.com/google/uuid"

	"github.com/OCAP2/scene-engine/pkg/core"
)

// ActiveObject is an object as it appears at a given instant.
type ActiveObject struct {
	Object *core.Object
	// Frame is the frame in effect, nil for objects without frames.
	Frame *core.Frame
}

// AddObject inserts a new object of the given kind. An empty ID is replaced with a fresh UUID.
// Temporal fields must lie within the scene window.
func (m *Model) AddObject(kind core.Kind, o core.Object) (string, error) {
	if _, err := core.ParseKind(string(kind)); err != nil {
		return "", err
	}
	if o.CreationTime != nil && !kind.HasCreationTime() {
		return "", fmt.Errorf("%w: %s do not carry a creation time", core.ErrValidation, kind)
	}

	obj := o.Clone()
	obj.Kind = kind
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}
	obj.SortFrames()

	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return "", core.ErrNoScene
	}
	if !objectInWindow(&m.current.scene, obj) {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: object %s has timestamps outside the scene window", core.ErrValidation, obj.ID)
	}
	if _, _, found := m.current.find(obj.ID); found {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: object %s already exists", core.ErrValidation, obj.ID)
	}
	m.current.objects[kind][obj.ID] = obj
	gen := m.generation
	m.mu.Unlock()

	m.log.Debug("Object added", "id", obj.ID, "kind", kind, "frames", len(obj.Frames))
	m.notify(Change{Kind: ChangeObjects, Generation: gen})
	return obj.ID, nil
}

// AddFrame inserts a frame into an object, replacing any frame with the same timestamp.
func (m *Model) AddFrame(id string, f core.Frame) error {
	return m.mutateObject(id, func(s *core.Scene, o *core.Object) error {
		if !s.Contains(f.Timestamp) {
			return fmt.Errorf("%w: frame timestamp %d outside the scene window", core.ErrValidation, f.Timestamp)
		}
		frame := core.Frame{Timestamp: f.Timestamp, Attributes: maps.Clone(f.Attributes)}
		i := sort.Search(len(o.Frames), func(i int) bool {
			return o.Frames[i].Timestamp >= f.Timestamp
		})
		if i < len(o.Frames) && o.Frames[i].Timestamp == f.Timestamp {
			o.Frames[i] = frame
			return nil
		}
		o.Frames = append(o.Frames, core.Frame{})
		copy(o.Frames[i+1:], o.Frames[i:])
		o.Frames[i] = frame
		return nil
	})
}

// RemoveFrame deletes the frame at exactly ts.
func (m *Model) RemoveFrame(id string, ts int64) error {
	return m.mutateObject(id, func(_ *core.Scene, o *core.Object) error {
		for i, f := range o.Frames {
			if f.Timestamp == ts {
				o.Frames = append(o.Frames[:i], o.Frames[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: no frame at %d on object %s", core.ErrObjectNotFound, ts, id)
	})
}

// UpdateAttributes merges attrs into the object's attributes. A nil value removes the key.
func (m *Model) UpdateAttributes(id string, attrs map[string]any) error {
	return m.mutateObject(id, func(_ *core.Scene, o *core.Object) error {
		if o.Attributes == nil {
			o.Attributes = make(map[string]any, len(attrs))
		}
		for k, v := range attrs {
			if v == nil {
				delete(o.Attributes, k)
				continue
			}
			o.Attributes[k] = v
		}
		return nil
	})
}

// DeleteObject removes an object from its collection.
func (m *Model) DeleteObject(id string) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return core.ErrNoScene
	}
	kind, _, found := m.current.find(id)
	if !found {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", core.ErrObjectNotFound, id)
	}
	delete(m.current.objects[kind], id)
	gen := m.generation
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeObjects, Generation: gen})
	return nil
}

// Object returns a copy of one object.
func (m *Model) Object(id string) (*core.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, core.ErrNoScene
	}
	_, o, found := m.current.find(id)
	if !found {
		return nil, fmt.Errorf("%w: %s", core.ErrObjectNotFound, id)
	}
	return o.Clone(), nil
}

// Objects returns copies of all objects of a kind ordered by ID.
func (m *Model) Objects(kind core.Kind) []*core.Object {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	byID := m.current.objects[kind]
	out := make([]*core.Object, 0, len(byID))
	for _, o := range byID {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ObjectCounts returns the number of objects per kind.
func (m *Model) ObjectCounts() map[core.Kind]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[core.Kind]int, len(core.Kinds))
	for _, k := range core.Kinds {
		if m.current != nil {
			counts[k] = len(m.current.objects[k])
		} else {
			counts[k] = 0
		}
	}
	return counts
}

// ActiveAt returns the objects visible at the absolute timestamp ts, ordered by kind then ID.
// Objects with frames are active once their first frame is reached and carry the nearest frame
// at or before ts. Objects without frames are active once their timestamp and creation time are reached.
func (m *Model) ActiveAt(ts int64) []ActiveObject {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}

	var out []ActiveObject
	for _, kind := range core.Kinds {
		byID := m.current.objects[kind]
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			o := byID[id]
			if o.CreationTime != nil && *o.CreationTime > ts {
				continue
			}
			if len(o.Frames) > 0 {
				f, ok := o.FrameAt(ts)
				if !ok {
					continue
				}
				frame := core.Frame{Timestamp: f.Timestamp, Attributes: maps.Clone(f.Attributes)}
				out = append(out, ActiveObject{Object: o.Clone(), Frame: &frame})
				continue
			}
			if o.Timestamp != nil && *o.Timestamp > ts {
				continue
			}
			out = append(out, ActiveObject{Object: o.Clone()})
		}
	}
	return out
}

func (m *Model) mutateObject(id string, fn func(*core.Scene, *core.Object) error) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return core.ErrNoScene
	}
	_, o, found := m.current.find(id)
	if !found {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", core.ErrObjectNotFound, id)
	}
	if err := fn(&m.current.scene, o); err != nil {
		m.mu.Unlock()
		return err
	}
	gen := m.generation
	m.mu.Unlock()

	m.notify(Change{Kind: ChangeObjects, Generation: gen})
	return nil
}

func (s *state) find(id string) (core.Kind, *core.Object, bool) {
	for _, kind := range core.Kinds {
		if o, ok := s.objects[kind][id]; ok {
			return kind, o, true
		}
	}
	return "", nil, false
}
