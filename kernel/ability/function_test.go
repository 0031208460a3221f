package ability

import (
	"context"
	"testing"
)

type createArgs struct {
	Title   string `json:"title" desc:"The title of the post"`
	Content string `json:"content" desc:"The content of the post"`
	Status  string `json:"status,omitempty"`
}

func TestSchemaForType(t *testing.T) {
	schema := schemaForType[createArgs]()
	if schema["type"] != "object" {
		t.Fatalf("type = %v", schema["type"])
	}
	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("no properties")
	}
	title, ok := properties["title"].(map[string]any)
	if !ok || title["type"] != "string" {
		t.Fatalf("title schema = %v", properties["title"])
	}
	if title["description"] != "The title of the post" {
		t.Fatalf("title description = %v", title["description"])
	}
	required, ok := schema["required"].([]string)
	if !ok || len(required) != 2 {
		t.Fatalf("required = %v", schema["required"])
	}
	for _, name := range required {
		if name == "status" {
			t.Fatal("omitempty field must not be required")
		}
	}
}

func TestFunctionAbility_Execute(t *testing.T) {
	a, err := NewFunction[createArgs](Config{
		Name:      "wrenbot/create-post",
		CanInvoke: allowAll,
	}, func(ctx context.Context, args createArgs) (any, error) {
		return "Successfully created draft post with ID: 42 (" + args.Title + ")", nil
	})
	if err != nil {
		t.Fatal(err)
	}

	payload, err := a.Execute(context.Background(), map[string]any{
		"title":   "Hello",
		"content": "World",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload != "Successfully created draft post with ID: 42 (Hello)" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestFunctionAbility_ExecuteRejectsBadArgs(t *testing.T) {
	a, err := NewFunction[createArgs](Config{
		Name:      "wrenbot/create-post",
		CanInvoke: allowAll,
	}, func(ctx context.Context, args createArgs) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		args map[string]any
	}{
		{name: "missing required", args: map[string]any{"title": "Hello"}},
		{name: "wrong type", args: map[string]any{"title": 7, "content": "World"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := a.Execute(context.Background(), tc.args); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateArgs_IntegerFromJSON(t *testing.T) {
	type editArgs struct {
		PostID int64 `json:"post_id"`
	}
	schema := schemaForType[editArgs]()
	// JSON decoding produces float64 for numbers.
	if err := ValidateArgs(schema, map[string]any{"post_id": float64(9)}); err != nil {
		t.Fatalf("whole float64 must validate as integer: %v", err)
	}
	if err := ValidateArgs(schema, map[string]any{"post_id": 9.5}); err == nil {
		t.Fatal("fractional value must fail integer validation")
	}
}
