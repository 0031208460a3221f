package builtin

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/perchlabs/wrenbot/internal/content"
	"github.com/perchlabs/wrenbot/kernel/ability"
	"github.com/perchlabs/wrenbot/kernel/identity"
)

func newTestAbilities(t *testing.T) (*ability.Registry, *content.Store) {
	t.Helper()
	store, err := content.New(filepath.Join(t.TempDir(), "content.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	abilities, err := All(store)
	if err != nil {
		t.Fatal(err)
	}
	registry := ability.NewRegistry()
	if err := registry.RegisterAll(abilities...); err != nil {
		t.Fatal(err)
	}
	return registry, store
}

func execute(t *testing.T, registry *ability.Registry, name string, args map[string]any) string {
	t.Helper()
	a, ok := registry.Lookup(name)
	if !ok {
		t.Fatalf("ability %q not registered", name)
	}
	payload, err := a.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	text, ok := payload.(string)
	if !ok {
		t.Fatalf("%s: payload is %T, want string", name, payload)
	}
	return text
}

func TestAll_RegistrationOrder(t *testing.T) {
	registry, _ := newTestAbilities(t)
	names := make([]string, 0, 9)
	for _, a := range registry.ListAll() {
		names = append(names, a.Name())
	}
	want := []string{
		"wrenbot/create-post",
		"wrenbot/edit-post",
		"wrenbot/add-tags",
		"wrenbot/get-post-content",
		"wrenbot/search-posts",
		"wrenbot/get-categories",
		"wrenbot/create-category",
		"wrenbot/delete-category",
		"wrenbot/assign-category",
	}
	if len(names) != len(want) {
		t.Fatalf("registered %d abilities, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestPostAbilities(t *testing.T) {
	registry, store := newTestAbilities(t)

	out := execute(t, registry, "wrenbot/create-post", map[string]any{
		"title":   "Hello",
		"content": "World",
	})
	if out != "Successfully created draft post with ID: 1" {
		t.Fatalf("create-post = %q", out)
	}

	out = execute(t, registry, "wrenbot/edit-post", map[string]any{
		"post_id": float64(1),
		"status":  "publish",
	})
	if out != "Successfully updated post 1" {
		t.Fatalf("edit-post = %q", out)
	}

	out = execute(t, registry, "wrenbot/add-tags", map[string]any{
		"post_id": float64(1),
		"tags":    "go, release",
	})
	if out != "Successfully added tags to post 1" {
		t.Fatalf("add-tags = %q", out)
	}

	out = execute(t, registry, "wrenbot/get-post-content", map[string]any{
		"post_id": float64(1),
	})
	var detail map[string]any
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("get-post-content payload is not JSON: %q", out)
	}
	if detail["title"] != "Hello" || detail["status"] != "publish" {
		t.Fatalf("get-post-content = %v", detail)
	}

	out = execute(t, registry, "wrenbot/get-post-content", map[string]any{
		"post_id": float64(404),
	})
	if out != "Post not found." {
		t.Fatalf("get-post-content miss = %q", out)
	}

	post, err := store.GetPost(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(post.Tags) != 2 {
		t.Fatalf("tags = %v", post.Tags)
	}
}

func TestSearchPosts(t *testing.T) {
	registry, _ := newTestAbilities(t)

	out := execute(t, registry, "wrenbot/search-posts", map[string]any{"search": "Hello"})
	if out != "No posts found for that search term." {
		t.Fatalf("empty search = %q", out)
	}

	execute(t, registry, "wrenbot/create-post", map[string]any{"title": "Hello", "content": "x"})
	out = execute(t, registry, "wrenbot/search-posts", map[string]any{"search": "Hel"})
	var results []map[string]any
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("search payload is not JSON: %q", out)
	}
	if len(results) != 1 || results[0]["title"] != "Hello" {
		t.Fatalf("search results = %v", results)
	}
}

func TestCategoryAbilities(t *testing.T) {
	registry, _ := newTestAbilities(t)

	out := execute(t, registry, "wrenbot/create-category", map[string]any{"name": "News"})
	if !strings.HasPrefix(out, `Successfully created category "News" with ID: `) {
		t.Fatalf("create-category = %q", out)
	}

	out = execute(t, registry, "wrenbot/get-categories", nil)
	var list []map[string]any
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("get-categories payload is not JSON: %q", out)
	}
	if len(list) != 1 || list[0]["name"] != "News" {
		t.Fatalf("categories = %v", list)
	}

	execute(t, registry, "wrenbot/create-post", map[string]any{"title": "Hello", "content": "x"})
	out = execute(t, registry, "wrenbot/assign-category", map[string]any{
		"post_id":     float64(1),
		"category_id": float64(1),
	})
	if out != "Successfully assigned category ID 1 to post 1" {
		t.Fatalf("assign-category = %q", out)
	}

	out = execute(t, registry, "wrenbot/delete-category", map[string]any{"category_id": float64(1)})
	if out != "Successfully deleted category ID 1" {
		t.Fatalf("delete-category = %q", out)
	}
	out = execute(t, registry, "wrenbot/delete-category", map[string]any{"category_id": float64(1)})
	if out != "Error deleting category: Category not found or could not be deleted." {
		t.Fatalf("delete-category miss = %q", out)
	}
}

func TestGrants(t *testing.T) {
	registry, _ := newTestAbilities(t)

	editorOnly := identity.Identity{Name: "writer", Grants: []string{identity.GrantEditPosts}}
	taxonomist := identity.Identity{Name: "organizer", Grants: []string{identity.GrantManageCategories}}

	cases := []struct {
		name       string
		editor     bool
		taxonomist bool
	}{
		{"wrenbot/create-post", true, false},
		{"wrenbot/edit-post", true, false},
		{"wrenbot/add-tags", true, false},
		{"wrenbot/get-post-content", true, false},
		{"wrenbot/search-posts", true, false},
		{"wrenbot/get-categories", false, true},
		{"wrenbot/create-category", false, true},
		{"wrenbot/delete-category", false, true},
		{"wrenbot/assign-category", true, false},
	}
	for _, tc := range cases {
		a, ok := registry.Lookup(tc.name)
		if !ok {
			t.Fatalf("ability %q not registered", tc.name)
		}
		if got := a.CanInvoke(editorOnly); got != tc.editor {
			t.Errorf("%s: editor CanInvoke = %v, want %v", tc.name, got, tc.editor)
		}
		if got := a.CanInvoke(taxonomist); got != tc.taxonomist {
			t.Errorf("%s: taxonomist CanInvoke = %v, want %v", tc.name, got, tc.taxonomist)
		}
	}
}
