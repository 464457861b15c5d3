package permission

import (
	"fmt"
	"sort"
	"sync"
)

// Permission names granted by Default.
const (
	ViewAllUsers          = "canViewAllUsers"
	ManageUsers           = "canManageUsers"
	AssignRoles           = "canAssignRoles"
	ViewPayments          = "canViewPayments"
	ManageApplications    = "canManageApplications"
	ManageMedia           = "canManageMedia"
	SendEmails            = "canSendEmails"
	ViewAnalytics         = "canViewAnalytics"
	ExportData            = "canExportData"
	ViewCohortStudents    = "canViewCohortStudents"
	ApproveStudentContent = "canApproveStudentContent"
	ViewCohortMembers     = "canViewCohortMembers"
	AccessAlumniNetwork   = "canAccessAlumniNetwork"
	ApplyToProgram        = "canApplyToProgram"
)

// RoleManager holds the compiled mask of each role.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask
	frozen bool
}

// NewRoleManager returns a RoleManager resolving names through registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask),
	}
}

// RegisterRole compiles permissionNames into the mask of role. Every name must
// already be registered.
func (rm *RoleManager) RegisterRole(role string, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return ErrRoleFrozen
	}
	if role == "" {
		return ErrEmptyRole
	}
	if _, exists := rm.roles[role]; exists {
		return ErrRoleDuplicate
	}

	var mask Mask
	for _, perm := range permissionNames {
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknown, perm)
		}
		mask.Set(bit)
	}
	rm.roles[role] = mask
	return nil
}

// RegisterRootRole gives role the root bit, which passes every check.
func (rm *RoleManager) RegisterRootRole(role string) error {
	bit, ok := rm.registry.RootBit()
	if !ok {
		return ErrRootNotReserved
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return ErrRoleFrozen
	}
	if role == "" {
		return ErrEmptyRole
	}
	if _, exists := rm.roles[role]; exists {
		return ErrRoleDuplicate
	}

	var mask Mask
	mask.Set(bit)
	rm.roles[role] = mask
	return nil
}

// Mask returns the compiled mask of role.
func (rm *RoleManager) Mask(role string) (Mask, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	mask, ok := rm.roles[role]
	return mask, ok
}

// Has reports whether role grants perm. Unknown roles and unregistered
// permissions are denied.
func (rm *RoleManager) Has(role, perm string) bool {
	if rm == nil {
		return false
	}
	bit, ok := rm.registry.Bit(perm)
	if !ok {
		return false
	}
	mask, ok := rm.Mask(role)
	if !ok {
		return false
	}
	_, rootReserved := rm.registry.RootBit()
	return mask.Has(bit, rootReserved)
}

// Permissions lists the permissions role grants, sorted by name.
func (rm *RoleManager) Permissions(role string) []string {
	mask, ok := rm.Mask(role)
	if !ok {
		return nil
	}
	_, rootReserved := rm.registry.RootBit()
	var out []string
	for bit := 0; bit < rm.registry.Count(); bit++ {
		if mask.Has(bit, rootReserved) {
			name, _ := rm.registry.Name(bit)
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Freeze stops further role registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}

var defaultRoles = []struct {
	role  string
	perms []string
}{
	{"ADMIN", []string{ManageUsers, AssignRoles, ManageApplications, ManageMedia, SendEmails, ViewAnalytics, ExportData}},
	{"MENTOR", []string{ManageMedia, ViewCohortStudents, ApproveStudentContent}},
	{"STUDENT", []string{ManageMedia, ViewCohortMembers}},
	{"ALUMNI", []string{AccessAlumniNetwork}},
	{"USER", []string{ApplyToProgram}},
}

// MustDefault is Default for package-level wiring. It panics on error.
func MustDefault() *RoleManager {
	rm, err := Default()
	if err != nil {
		panic(err)
	}
	return rm
}

// Default returns a frozen RoleManager for the six built-in roles. SUPER_ADMIN
// holds the root bit.
func Default() (*RoleManager, error) {
	reg := NewRegistry(true)
	for _, name := range []string{
		ViewAllUsers, ManageUsers, AssignRoles, ViewPayments, ManageApplications,
		ManageMedia, SendEmails, ViewAnalytics, ExportData, ViewCohortStudents,
		ApproveStudentContent, ViewCohortMembers, AccessAlumniNetwork, ApplyToProgram,
	} {
		if _, err := reg.Register(name); err != nil {
			return nil, err
		}
	}
	reg.Freeze()

	rm := NewRoleManager(reg)
	if err := rm.RegisterRootRole("SUPER_ADMIN"); err != nil {
		return nil, err
	}
	for _, r := range defaultRoles {
		if err := rm.RegisterRole(r.role, r.perms); err != nil {
			return nil, err
		}
	}
	rm.Freeze()
	return rm, nil
}
