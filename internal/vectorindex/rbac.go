package vectorindex

import (
	"strings"

	"rag-knowledge-platform/models"
)

// Clearance ordinals per canonical role. Anything unrecognized gets zero
// clearance and sees only PUBLIC chunks.
var roleClearance = map[string]int{
	models.RoleViewer:  1,
	models.RoleEditor:  2,
	models.RoleManager: 3,
	models.RoleAdmin:   4,
}

// Sensitivity ordinals. Unknown labels default to INTERNAL.
var sensitivityOrdinal = map[string]int{
	models.SensitivityPublic:       0,
	models.SensitivityInternal:     1,
	models.SensitivityConfidential: 2,
	models.SensitivityRestricted:   3,
	models.SensitivityExecutive:    4,
}

// NormalizeRole maps a raw role string to its canonical token. Legacy
// aliases "user" and "IC" normalize to VIEWER.
func NormalizeRole(role string) string {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case "VIEWER", "USER", "IC":
		return models.RoleViewer
	case "EDITOR":
		return models.RoleEditor
	case "MANAGER":
		return models.RoleManager
	case "ADMIN", "SUPERADMIN":
		return models.RoleAdmin
	default:
		return ""
	}
}

// ExpandRoles returns the hierarchical role set for a caller:
// VIEWER ⊂ EDITOR ⊂ MANAGER ⊂ ADMIN.
func ExpandRoles(role string) map[string]bool {
	canonical := NormalizeRole(role)
	expanded := make(map[string]bool, 4)
	switch canonical {
	case models.RoleAdmin:
		expanded[models.RoleAdmin] = true
		fallthrough
	case models.RoleManager:
		expanded[models.RoleManager] = true
		fallthrough
	case models.RoleEditor:
		expanded[models.RoleEditor] = true
		fallthrough
	case models.RoleViewer:
		expanded[models.RoleViewer] = true
	}
	return expanded
}

// Clearance returns the clearance ordinal for a raw role string.
func Clearance(role string) int {
	return roleClearance[NormalizeRole(role)]
}

// SensitivityOrdinal returns the ordinal for a sensitivity label,
// defaulting to INTERNAL for unknown or empty values.
func SensitivityOrdinal(s string) int {
	if ord, ok := sensitivityOrdinal[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return ord
	}
	return sensitivityOrdinal[models.SensitivityInternal]
}

// KnownSensitivity reports whether the label is one of the defined
// sensitivity levels.
func KnownSensitivity(s string) bool {
	_, ok := sensitivityOrdinal[strings.ToUpper(strings.TrimSpace(s))]
	return ok
}

// Filters is the caller's access scope for a search. Both fields are
// required; the index fails closed when either is empty.
type Filters struct {
	Department string
	Role       string
}

// Valid reports whether both RBAC dimensions are present.
func (f Filters) Valid() bool {
	return strings.TrimSpace(f.Department) != "" && strings.TrimSpace(f.Role) != ""
}

// IsAdmin reports whether the caller's expanded role set includes ADMIN.
func (f Filters) IsAdmin() bool {
	return ExpandRoles(f.Role)[models.RoleAdmin]
}

// visible applies the clearance and department checks for one chunk.
// Department checks are bypassed for chunks in the default department and
// for ADMIN callers.
func visible(sensitivity, department string, f Filters) bool {
	if SensitivityOrdinal(sensitivity) > Clearance(f.Role) {
		return false
	}
	if f.IsAdmin() {
		return true
	}
	if department == "" || strings.EqualFold(department, models.DefaultDepartment) {
		return true
	}
	return strings.EqualFold(department, f.Department)
}
