package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func noopTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: name + " does nothing",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	}
}

func TestRegisterPreservesOrder(t *testing.T) {
	r := NewRegistry()
	names := []string{"zulu", "alpha", "mike", "bravo"}
	for _, n := range names {
		r.Register(noopTool(n))
	}

	list := r.List()
	if len(list) != len(names) {
		t.Fatalf("len(List()) = %d, want %d", len(list), len(names))
	}
	for i, entry := range list {
		fn := entry["function"].(map[string]any)
		if fn["name"] != names[i] {
			t.Errorf("List()[%d] = %v, want %s", i, fn["name"], names[i])
		}
	}
}

func TestRegisterFirstWins(t *testing.T) {
	r := NewRegistry()
	first := noopTool("dup")
	first.Description = "the original"
	second := noopTool("dup")
	second.Description = "an impostor"

	r.Register(first)
	r.Register(second)

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	got, err := r.Resolve("dup")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Description != "the original" {
		t.Errorf("Description = %q, want the first registration", got.Description)
	}
}

func TestResolveUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("does_not_exist")
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("err = %v, want ErrUnknownTool", err)
	}
}

func TestListSchemaShape(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:        "get_state",
		Description: "Reads a sensor.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"entity": map[string]any{"type": "string"},
			},
			"required": []string{"entity"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("%v", args["entity"]), nil
		},
	})

	list := r.List()
	if list[0]["type"] != "function" {
		t.Errorf(`type = %v, want "function"`, list[0]["type"])
	}
	fn := list[0]["function"].(map[string]any)
	if fn["description"] != "Reads a sensor." {
		t.Errorf("description = %v", fn["description"])
	}
	params := fn["parameters"].(map[string]any)
	if params["type"] != "object" {
		t.Errorf("parameters.type = %v", params["type"])
	}
}
