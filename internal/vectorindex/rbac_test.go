package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rag-knowledge-platform/models"
)

func TestNormalizeRole(t *testing.T) {
	cases := map[string]string{
		"VIEWER":     models.RoleViewer,
		"viewer":     models.RoleViewer,
		"user":       models.RoleViewer,
		"IC":         models.RoleViewer,
		"Editor":     models.RoleEditor,
		"MANAGER":    models.RoleManager,
		"admin":      models.RoleAdmin,
		"SUPERADMIN": models.RoleAdmin,
		"":           "",
		"intern":     "",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeRole(input), "input %q", input)
	}
}

func TestExpandRolesIsCumulative(t *testing.T) {
	viewer := ExpandRoles(models.RoleViewer)
	assert.True(t, viewer[models.RoleViewer])
	assert.False(t, viewer[models.RoleEditor])

	manager := ExpandRoles(models.RoleManager)
	assert.True(t, manager[models.RoleViewer])
	assert.True(t, manager[models.RoleEditor])
	assert.True(t, manager[models.RoleManager])
	assert.False(t, manager[models.RoleAdmin])

	admin := ExpandRoles("superadmin")
	for _, r := range []string{models.RoleViewer, models.RoleEditor, models.RoleManager, models.RoleAdmin} {
		assert.True(t, admin[r])
	}
}

// Every role must see exactly the sensitivity levels at or below its
// clearance, across the whole grid.
func TestClearanceAgainstSensitivityGrid(t *testing.T) {
	roles := []string{models.RoleViewer, models.RoleEditor, models.RoleManager, models.RoleAdmin}
	levels := []string{
		models.SensitivityPublic,
		models.SensitivityInternal,
		models.SensitivityConfidential,
		models.SensitivityRestricted,
		models.SensitivityExecutive,
	}

	for ri, role := range roles {
		f := Filters{Department: models.DefaultDepartment, Role: role}
		for li, level := range levels {
			got := visible(level, models.DefaultDepartment, f)
			want := ri+1 >= li // clearance 1..4 vs ordinal 0..4
			assert.Equal(t, want, got, "role %s vs sensitivity %s", role, level)
		}
	}
}

func TestUnknownSensitivityTreatedAsInternal(t *testing.T) {
	viewer := Filters{Department: models.DefaultDepartment, Role: models.RoleViewer}
	assert.True(t, visible("", models.DefaultDepartment, viewer))
	assert.True(t, visible("bogus", models.DefaultDepartment, viewer))
}

func TestDepartmentScoping(t *testing.T) {
	engViewer := Filters{Department: "Engineering", Role: models.RoleViewer}

	assert.True(t, visible(models.SensitivityPublic, "Engineering", engViewer))
	assert.True(t, visible(models.SensitivityPublic, "engineering", engViewer), "department match is case-insensitive")
	assert.False(t, visible(models.SensitivityPublic, "Finance", engViewer))

	// General and unset departments are visible to everyone.
	assert.True(t, visible(models.SensitivityPublic, models.DefaultDepartment, engViewer))
	assert.True(t, visible(models.SensitivityPublic, "", engViewer))
}

func TestAdminBypassesDepartment(t *testing.T) {
	admin := Filters{Department: "IT", Role: models.RoleAdmin}
	assert.True(t, visible(models.SensitivityExecutive, "Finance", admin))
}

func TestFiltersValid(t *testing.T) {
	assert.True(t, Filters{Department: "Engineering", Role: models.RoleViewer}.Valid())
	assert.False(t, Filters{Department: "", Role: models.RoleViewer}.Valid())
	assert.False(t, Filters{Department: "Engineering", Role: ""}.Valid())
	assert.False(t, Filters{Department: "  ", Role: models.RoleViewer}.Valid())
}

func TestKnownSensitivity(t *testing.T) {
	assert.True(t, KnownSensitivity("public"))
	assert.True(t, KnownSensitivity(" EXECUTIVE "))
	assert.False(t, KnownSensitivity("secret"))
	assert.False(t, KnownSensitivity(""))
}
