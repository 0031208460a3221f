package ability

import (
	"context"
	"errors"
	"testing"

	"github.com/perchlabs/wrenbot/kernel/identity"
)

func allowAll(identity.Identity) bool { return true }

func textAbility(t *testing.T, name string) Ability {
	t.Helper()
	a, err := NewFunction[struct{}](Config{
		Name:      name,
		Label:     name,
		CanInvoke: allowAll,
	}, func(ctx context.Context, args struct{}) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(textAbility(t, "wrenbot/create-post")); err != nil {
		t.Fatal(err)
	}
	err := r.Register(textAbility(t, "wrenbot/create-post"))
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestRegistry_ListAllRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	names := []string{"wrenbot/search-posts", "wrenbot/create-post", "wrenbot/add-tags"}
	for _, name := range names {
		if err := r.Register(textAbility(t, name)); err != nil {
			t.Fatal(err)
		}
	}
	all := r.ListAll()
	if len(all) != len(names) {
		t.Fatalf("expected %d abilities, got %d", len(names), len(all))
	}
	for i, a := range all {
		if a.Name() != names[i] {
			t.Fatalf("position %d: expected %q, got %q", i, names[i], a.Name())
		}
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(textAbility(t, "wrenbot/get-categories")); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Lookup("wrenbot/get-categories"); !ok {
		t.Fatal("expected lookup hit")
	}
	if _, ok := r.Lookup("wrenbot/missing"); ok {
		t.Fatal("expected lookup miss")
	}
}
