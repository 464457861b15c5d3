package permission

import (
	"errors"
	"sync"
)

var (
	ErrFrozen          = errors.New("permission: registry frozen")
	ErrEmptyName       = errors.New("permission: name cannot be empty")
	ErrDuplicate       = errors.New("permission: already registered")
	ErrLimitExceeded   = errors.New("permission: limit exceeded")
	ErrUnknown         = errors.New("permission: not registered")
	ErrRoleFrozen      = errors.New("permission: role manager frozen")
	ErrEmptyRole       = errors.New("permission: role name empty")
	ErrRoleDuplicate   = errors.New("permission: role already registered")
	ErrRootNotReserved = errors.New("permission: root bit not reserved")
)

// Registry maps permission names to bit positions within a Mask.
type Registry struct {
	rootReserved bool

	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry returns an empty Registry. rootReserved keeps the highest bit
// for a root grant, leaving MaxBits-1 names.
func NewRegistry(rootReserved bool) *Registry {
	return &Registry{
		rootReserved: rootReserved,
		nameToBit:    make(map[string]int),
		bitToName:    make(map[int]string),
	}
}

// Register assigns the next free bit to name and returns it.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrFrozen
	}
	if name == "" {
		return -1, ErrEmptyName
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, ErrDuplicate
	}

	next := len(r.nameToBit)
	limit := MaxBits
	if r.rootReserved {
		limit--
	}
	if next >= limit {
		return -1, ErrLimitExceeded
	}

	r.nameToBit[name] = next
	r.bitToName[next] = name
	return next, nil
}

// Bit returns the bit of name, or false if it is not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission at bit, or false if it is unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Freeze stops further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// RootBit returns the reserved root bit, or false when none is reserved.
func (r *Registry) RootBit() (int, bool) {
	if !r.rootReserved {
		return -1, false
	}
	return MaxBits - 1, true
}
