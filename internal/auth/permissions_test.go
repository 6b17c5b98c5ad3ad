package auth

import "testing"

func TestSuperAdminGrantsEverything(t *testing.T) {
	catalog := DefaultCatalog()
	for _, perm := range AllPermissions() {
		if !catalog.HasPermission([]string{"super_admin"}, perm) {
			t.Fatalf("super_admin is missing %s", perm)
		}
	}
}

func TestRoleSubsets(t *testing.T) {
	catalog := DefaultCatalog()
	cases := []struct {
		role    string
		granted []Permission
		denied  []Permission
	}{
		{"admin", []Permission{PermUserWrite, PermContactDelete, PermAuditRead}, []Permission{PermUserDelete, PermAIAdmin, PermPluginManage, PermAdminWrite}},
		{"manager", []Permission{PermContactWrite, PermTeamWrite}, []Permission{PermContactDelete, PermAdminRead}},
		{"developer", []Permission{PermProjectWrite, PermTaskWrite}, []Permission{PermContactWrite, PermCompanyWrite}},
		{"user", []Permission{PermContactRead, PermTaskWrite}, []Permission{PermContactDelete, PermContactWrite, PermUserWrite}},
		{"guest", []Permission{PermProjectRead, PermTaskRead}, []Permission{PermContactRead, PermUserRead}},
	}
	for _, tc := range cases {
		for _, p := range tc.granted {
			if !catalog.HasPermission([]string{tc.role}, p) {
				t.Errorf("%s should grant %s", tc.role, p)
			}
		}
		for _, p := range tc.denied {
			if catalog.HasPermission([]string{tc.role}, p) {
				t.Errorf("%s should not grant %s", tc.role, p)
			}
		}
	}
}

func TestEffectivePermissionsSkipsUnknownRoles(t *testing.T) {
	var skipped []string
	catalog := DefaultCatalog(WithUnknownRoleHook(func(role string) {
		skipped = append(skipped, role)
	}))

	effective := catalog.EffectivePermissions([]string{"intern", "guest", "banana"})
	want := catalog.PermissionsForRole(RoleGuest)
	if len(effective) != len(want) {
		t.Fatalf("expected exactly the guest set (%d perms), got %d", len(want), len(effective))
	}
	for _, p := range want {
		if _, ok := effective[p]; !ok {
			t.Fatalf("guest permission %s missing from effective set", p)
		}
	}
	if len(skipped) != 2 || skipped[0] != "intern" || skipped[1] != "banana" {
		t.Fatalf("unexpected unknown-role reports: %v", skipped)
	}
}

func TestHasPermissionAllUnknownRoles(t *testing.T) {
	catalog := DefaultCatalog()
	if catalog.HasPermission([]string{"intern", "wizard"}, PermContactRead) {
		t.Fatal("unknown roles must grant nothing")
	}
	if catalog.HasPermission(nil, PermContactRead) {
		t.Fatal("empty role list must grant nothing")
	}
}

func TestRoleNamesAreNormalized(t *testing.T) {
	catalog := DefaultCatalog()
	if !catalog.HasPermission([]string{"  Admin "}, PermUserWrite) {
		t.Fatal("role resolution should trim and lower-case names")
	}
}

func TestPermissionsForRoleUnknown(t *testing.T) {
	catalog := DefaultCatalog()
	if perms := catalog.PermissionsForRole(Role("nope")); perms != nil {
		t.Fatalf("expected nil for unknown role, got %v", perms)
	}
}

func TestCatalogCopiesInput(t *testing.T) {
	grants := map[Role][]Permission{RoleGuest: {PermTaskRead}}
	catalog := NewCatalog(grants)
	grants[RoleGuest] = append(grants[RoleGuest], PermContactDelete)
	if catalog.HasPermission([]string{"guest"}, PermContactDelete) {
		t.Fatal("catalog must not observe mutation of the source table")
	}
}
