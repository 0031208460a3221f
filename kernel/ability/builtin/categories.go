package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/perchlabs/wrenbot/internal/content"
	"github.com/perchlabs/wrenbot/kernel/ability"
)

func NewGetCategories(store ContentStore) (ability.Ability, error) {
	type args struct{}
	return ability.NewFunction[args](ability.Config{
		Name:        "wrenbot/get-categories",
		Label:       "Get Categories",
		Description: "Retrieves a list of all post categories.",
		CanInvoke:   canManageCategories,
	}, func(ctx context.Context, _ args) (any, error) {
		categories, err := store.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		list := make([]map[string]any, 0, len(categories))
		for _, c := range categories {
			list = append(list, map[string]any{"id": c.ID, "name": c.Name})
		}
		return jsonPayload(list)
	})
}

func NewCreateCategory(store ContentStore) (ability.Ability, error) {
	type args struct {
		Name string `json:"name" desc:"The name of the new category"`
	}
	return ability.NewFunction[args](ability.Config{
		Name:        "wrenbot/create-category",
		Label:       "Create Category",
		Description: "Creates a new post category.",
		CanInvoke:   canManageCategories,
	}, func(ctx context.Context, in args) (any, error) {
		id, err := store.CreateCategory(ctx, in.Name)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("Successfully created category %q with ID: %d", in.Name, id), nil
	})
}

func NewDeleteCategory(store ContentStore) (ability.Ability, error) {
	type args struct {
		CategoryID int64 `json:"category_id" desc:"The ID of the category to delete"`
	}
	return ability.NewFunction[args](ability.Config{
		Name:        "wrenbot/delete-category",
		Label:       "Delete Category",
		Description: "Deletes a post category by ID.",
		CanInvoke:   canManageCategories,
	}, func(ctx context.Context, in args) (any, error) {
		err := store.DeleteCategory(ctx, in.CategoryID)
		if errors.Is(err, content.ErrCategoryNotFound) {
			return "Error deleting category: Category not found or could not be deleted.", nil
		}
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("Successfully deleted category ID %d", in.CategoryID), nil
	})
}

func NewAssignCategory(store ContentStore) (ability.Ability, error) {
	type args struct {
		PostID     int64 `json:"post_id" desc:"The ID of the post"`
		CategoryID int64 `json:"category_id" desc:"The ID of the category to assign"`
	}
	return ability.NewFunction[args](ability.Config{
		Name:        "wrenbot/assign-category",
		Label:       "Assign Category",
		Description: "Assigns a category to a post.",
		CanInvoke:   canEditPosts,
	}, func(ctx context.Context, in args) (any, error) {
		if err := store.AssignCategory(ctx, in.PostID, in.CategoryID); err != nil {
			return nil, err
		}
		return fmt.Sprintf("Successfully assigned category ID %d to post %d", in.CategoryID, in.PostID), nil
	})
}
