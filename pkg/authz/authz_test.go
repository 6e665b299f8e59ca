package authz

import "testing"

func clusterID(id int64) *int64 { return &id }
func ns(s string) *string      { return &s }

func TestDecide_Admin(t *testing.T) {
	ctx := AuthContext{Role: RoleAdmin}
	for _, level := range []Level{LevelRead, LevelManage} {
		if d := Decide(ctx, level, clusterID(1), ns("default")); !d.Allowed {
			t.Errorf("admin should always be allowed, level=%v: %v", level, d.Reason)
		}
	}
}

func TestDecide_Operator(t *testing.T) {
	ctx := AuthContext{Role: RoleOperator}
	if d := Decide(ctx, LevelManage, clusterID(42), ns("prod")); !d.Allowed {
		t.Errorf("operator should be allowed to manage any cluster/namespace: %v", d.Reason)
	}
	if d := Decide(ctx, LevelRead, nil, nil); !d.Allowed {
		t.Errorf("operator read with no cluster scope should be allowed: %v", d.Reason)
	}
}

func TestDecide_User(t *testing.T) {
	ctx := AuthContext{
		Role: RoleUser,
		ExplicitNamespaceGrants: map[NamespaceKey]struct{}{
			{ClusterID: 1, Namespace: "team-a"}: {},
		},
	}

	if d := Decide(ctx, LevelRead, clusterID(99), ns("anything")); !d.Allowed {
		t.Errorf("user should always be able to read: %v", d.Reason)
	}
	if d := Decide(ctx, LevelManage, clusterID(1), ns("team-a")); !d.Allowed {
		t.Errorf("user should be able to manage a granted namespace: %v", d.Reason)
	}
	if d := Decide(ctx, LevelManage, clusterID(1), ns("team-b")); d.Allowed {
		t.Error("user should not be able to manage an ungranted namespace")
	}
	if d := Decide(ctx, LevelManage, nil, nil); d.Allowed {
		t.Error("user manage with no cluster/namespace scope should be denied")
	}
}

func TestDecide_Viewer(t *testing.T) {
	ctx := AuthContext{
		Role: RoleViewer,
		ExplicitClusterGrants: map[int64]struct{}{
			5: {},
		},
	}

	if d := Decide(ctx, LevelRead, clusterID(5), nil); !d.Allowed {
		t.Errorf("viewer should read a granted cluster: %v", d.Reason)
	}
	if d := Decide(ctx, LevelRead, clusterID(6), nil); d.Allowed {
		t.Error("viewer should not read an ungranted cluster")
	}
	if d := Decide(ctx, LevelRead, nil, nil); !d.Allowed {
		t.Error("viewer listing clusters (no cluster scope) should be allowed, filtering is the caller's job")
	}
	if d := Decide(ctx, LevelManage, clusterID(5), ns("default")); d.Allowed {
		t.Error("viewer should never be allowed to manage")
	}
}

func TestDecide_UnrecognizedRole(t *testing.T) {
	ctx := AuthContext{Role: "bogus"}
	if d := Decide(ctx, LevelRead, clusterID(1), nil); d.Allowed {
		t.Error("unrecognized role should be denied")
	}
}

func TestIsProtectedNamespace(t *testing.T) {
	for _, n := range []string{"default", "kube-system", "kube-public", "kube-node-lease"} {
		if !IsProtectedNamespace(n) {
			t.Errorf("%q should be protected", n)
		}
	}
	if IsProtectedNamespace("team-a") {
		t.Error("team-a should not be protected")
	}
}

func TestDecideNamespaceDelete(t *testing.T) {
	ctx := AuthContext{Role: RoleAdmin}
	if d := DecideNamespaceDelete(ctx, 1, "kube-system"); d.Allowed {
		t.Error("system namespace delete should be refused even for admin")
	}
	if d := DecideNamespaceDelete(ctx, 1, "team-a"); !d.Allowed {
		t.Errorf("admin should be able to delete a non-system namespace: %v", d.Reason)
	}
}
