package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hausgeist/hausgeist/internal/todo"
)

// SetTodoTools adds the todo_app tool, a single operation-dispatch
// tool over the per-user todo store. Its user_id parameter is declared
// as the identity parameter, so the dispatcher always overwrites it
// with the authenticated user.
func (r *Registry) SetTodoTools(store *todo.Store, loc *time.Location) {
	if store == nil {
		return
	}
	if loc == nil {
		loc = time.Local
	}

	r.Register(&Tool{
		Name: "todo_app",
		Description: "Manage the user's todo lists. Operations: " +
			"'add' a new item (text required, category and due date optional), " +
			"'get' items (optionally by category), " +
			"'overdue' to list items whose due date has passed, " +
			"'delete' one item by id, " +
			"'categories' to list the user's categories, " +
			"'delete_category' to remove a whole category.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"op": map[string]any{
					"type":        "string",
					"enum":        []string{"add", "get", "overdue", "delete", "categories", "delete_category"},
					"description": "The operation to perform.",
				},
				"user_id": map[string]any{
					"type":        "string",
					"description": "Filled in automatically from the authenticated user. Do not set.",
				},
				"text": map[string]any{
					"type":        "string",
					"description": "Item text, for op=add.",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "List category, e.g. 'shopping'. Defaults to 'general'.",
				},
				"id": map[string]any{
					"type":        "string",
					"description": "Item id, for op=delete.",
				},
				"due": map[string]any{
					"type":        "string",
					"description": "Optional due date for op=add, as YYYY-MM-DD or RFC 3339.",
				},
			},
			"required": []string{"op"},
		},
		IdentityParam: "user_id",
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return todoApp(store, loc, args)
		},
	})
}

func todoApp(store *todo.Store, loc *time.Location, args map[string]any) (string, error) {
	userID := stringArg(args, "user_id")
	category := stringArg(args, "category")

	switch op := stringArg(args, "op"); op {
	case "add":
		text := strings.TrimSpace(stringArg(args, "text"))
		if text == "" {
			return "", fmt.Errorf("op=add needs a non-empty text")
		}
		due, err := parseDue(stringArg(args, "due"), loc)
		if err != nil {
			return "", err
		}
		item, err := store.Add(userID, category, text, due)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Added %q to %s (id %s).", item.Text, item.Category, item.ID), nil

	case "get":
		items, err := store.List(userID, category)
		if err != nil {
			return "", err
		}
		return formatItems(items, category), nil

	case "overdue":
		items, err := store.Overdue(userID, time.Now().In(loc))
		if err != nil {
			return "", err
		}
		if len(items) == 0 {
			return "Nothing is overdue.", nil
		}
		return "Overdue items:\n" + formatItems(items, ""), nil

	case "delete":
		id := stringArg(args, "id")
		if id == "" {
			return "", fmt.Errorf("op=delete needs an id")
		}
		if err := store.Delete(userID, id); err != nil {
			if errors.Is(err, todo.ErrNotFound) {
				return fmt.Sprintf("No item with id %s.", id), nil
			}
			return "", err
		}
		return "Item deleted.", nil

	case "categories":
		cats, err := store.Categories(userID)
		if err != nil {
			return "", err
		}
		if len(cats) == 0 {
			return "No categories yet.", nil
		}
		return "Categories: " + strings.Join(cats, ", "), nil

	case "delete_category":
		if category == "" {
			return "", fmt.Errorf("op=delete_category needs a category")
		}
		n, err := store.DeleteCategory(userID, category)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted %d items from %s.", n, category), nil

	default:
		return "", fmt.Errorf("unknown op %q", op)
	}
}

func parseDue(raw string, loc *time.Location) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("cannot parse due date %q", raw)
}

func formatItems(items []todo.Item, category string) string {
	if len(items) == 0 {
		if category != "" {
			return fmt.Sprintf("No items in %s.", category)
		}
		return "The todo list is empty."
	}

	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- [%s] %s", item.Category, item.Text)
		if item.Due != nil {
			fmt.Fprintf(&b, " (due %s)", item.Due.Format("2006-01-02"))
		}
		fmt.Fprintf(&b, " (id %s)\n", item.ID)
	}
	return b.String()
}
