package sceneasset

import "testing"

func TestResolverTableLookup(t *testing.T) {
	table := NewResolverTable()
	table.Add("models/custom.bin", "blob:x/1")
	table.Add("textures/wood grain.png", "blob:x/2")
	table.Add("other/custom.bin", "blob:x/3")

	tests := []struct {
		uri  string
		want string
		hit  bool
	}{
		{"models/custom.bin", "blob:x/1", true},
		{"./models/custom.bin", "blob:x/1", true},
		{"models/../models/custom.bin", "blob:x/1", true},
		{"custom.bin", "blob:x/1", true},
		{"other/custom.bin", "blob:x/3", true},
		{"textures/wood%20grain.png", "blob:x/2", true},
		{"wood grain.png?v=2", "blob:x/2", true},
		{"https://cdn.example.com/assets/custom.bin", "blob:x/1", true},
		{"missing.png", "missing.png", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, hit := table.Lookup(tc.uri)
		if hit != tc.hit {
			t.Fatalf("Lookup(%q) hit: want=%v got=%v", tc.uri, tc.hit, hit)
		}
		if resolved := table.Resolve(tc.uri); resolved != tc.want {
			t.Fatalf("Resolve(%q): want=%q got=%q (lookup %q)", tc.uri, tc.want, resolved, got)
		}
	}
}

func TestResolutionContext(t *testing.T) {
	var ctx ResolutionContext
	if got := ctx.Resolve("a.bin"); got != "a.bin" {
		t.Fatalf("no active table should pass through: got %q", got)
	}

	t1, t2 := NewResolverTable(), NewResolverTable()
	t1.Add("a.bin", "blob:x/a")
	t2.Add("a.bin", "blob:x/b")

	ctx.Install(t1)
	ctx.Install(t2)
	if got := ctx.Resolve("a.bin"); got != "blob:x/b" {
		t.Fatalf("latest install wins: got %q", got)
	}
	if ctx.ClearIf(t1) {
		t.Fatalf("ClearIf on an inactive table must not clear")
	}
	if !ctx.IsActive(t2) {
		t.Fatalf("t2 should remain active")
	}
	if !ctx.ClearIf(t2) || ctx.Active() != nil {
		t.Fatalf("ClearIf on the active table should clear")
	}
	ctx.Install(t1)
	ctx.Clear()
	if ctx.Active() != nil {
		t.Fatalf("Clear should remove the active table")
	}
}
