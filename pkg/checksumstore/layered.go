package checksumstore

// Layered is a transient overlay over a persistent Store: new entries
// shadow the persistent store so that, within one planner invocation,
// a configuration's fingerprint computation sees parents built earlier
// in the same run. Writes land only in the overlay; the persistent
// store is untouched until a caller explicitly commits to it.
type Layered struct {
	persistent Store
	overlay    *Memory
}

// NewLayered wraps persistent with an empty overlay.
func NewLayered(persistent Store) *Layered {
	return &Layered{persistent: persistent, overlay: NewMemory()}
}

func (l *Layered) Get(id string) (string, bool, error) {
	if v, ok, _ := l.overlay.Get(id); ok {
		return v, true, nil
	}
	return l.persistent.Get(id)
}

func (l *Layered) GetAll() (map[string]string, error) {
	merged, err := l.persistent.GetAll()
	if err != nil {
		return nil, err
	}
	overlay, _ := l.overlay.GetAll()
	for k, v := range overlay {
		merged[k] = v
	}
	return merged, nil
}

func (l *Layered) Set(id, fingerprint string) error {
	return l.overlay.Set(id, fingerprint)
}

func (l *Layered) SetAll(mapping map[string]string) error {
	return l.overlay.SetAll(mapping)
}

// Overlay returns everything written into the overlay during this
// planner invocation.
func (l *Layered) Overlay() (map[string]string, error) {
	return l.overlay.GetAll()
}

// Persistent returns the wrapped persistent store, used by the
// publisher to commit fingerprints after a successful push.
func (l *Layered) Persistent() Store {
	return l.persistent
}
