// Package builtin provides the stock site-management abilities. Each
// constructor binds an ability to the content store and its grant.
package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/perchlabs/wrenbot/internal/content"
	"github.com/perchlabs/wrenbot/kernel/ability"
	"github.com/perchlabs/wrenbot/kernel/identity"
)

// ContentStore is the slice of the content store the abilities need.
type ContentStore interface {
	CreatePost(ctx context.Context, title, body string) (int64, error)
	UpdatePost(ctx context.Context, id int64, title, body, status *string) error
	AddTags(ctx context.Context, postID int64, tags []string) error
	GetPost(ctx context.Context, id int64) (*content.Post, error)
	SearchPosts(ctx context.Context, term string, limit int) ([]content.Post, error)
	ListCategories(ctx context.Context) ([]content.Category, error)
	CreateCategory(ctx context.Context, name string) (int64, error)
	DeleteCategory(ctx context.Context, id int64) error
	AssignCategory(ctx context.Context, postID, categoryID int64) error
}

// All returns every stock ability bound to the store, in registration order.
func All(store ContentStore) ([]ability.Ability, error) {
	var out []ability.Ability
	for _, build := range []func(ContentStore) (ability.Ability, error){
		NewCreatePost,
		NewEditPost,
		NewAddTags,
		NewGetPostContent,
		NewSearchPosts,
		NewGetCategories,
		NewCreateCategory,
		NewDeleteCategory,
		NewAssignCategory,
	} {
		a, err := build(store)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func canEditPosts(id identity.Identity) bool {
	return id.Can(identity.GrantEditPosts)
}

func canManageCategories(id identity.Identity) bool {
	return id.Can(identity.GrantManageCategories)
}

func NewCreatePost(store ContentStore) (ability.Ability, error) {
	type args struct {
		Title   string `json:"title" desc:"The title of the post"`
		Content string `json:"content" desc:"The content of the post"`
	}
	return ability.NewFunction[args](ability.Config{
		Name:        "wrenbot/create-post",
		Label:       "Create Post",
		Description: "Creates a new draft post.",
		CanInvoke:   canEditPosts,
	}, func(ctx context.Context, in args) (any, error) {
		id, err := store.CreatePost(ctx, in.Title, in.Content)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("Successfully created draft post with ID: %d", id), nil
	})
}

func NewEditPost(store ContentStore) (ability.Ability, error) {
	type args struct {
		PostID  int64  `json:"post_id" desc:"The ID of the post to edit"`
		Title   string `json:"title,omitempty" desc:"New title (optional)"`
		Content string `json:"content,omitempty" desc:"New content (optional)"`
		Status  string `json:"status,omitempty" desc:"New status (optional)"`
	}
	return ability.NewFunction[args](ability.Config{
		Name:        "wrenbot/edit-post",
		Label:       "Edit Post",
		Description: "Updates an existing post (title, content, or status).",
		CanInvoke:   canEditPosts,
	}, func(ctx context.Context, in args) (any, error) {
		var title, body, status *string
		if in.Title != "" {
			title = &in.Title
		}
		if in.Content != "" {
			body = &in.Content
		}
		if in.Status != "" {
			status = &in.Status
		}
		if err := store.UpdatePost(ctx, in.PostID, title, body, status); err != nil {
			return nil, err
		}
		return fmt.Sprintf("Successfully updated post %d", in.PostID), nil
	})
}

func NewAddTags(store ContentStore) (ability.Ability, error) {
	type args struct {
		PostID int64  `json:"post_id" desc:"The ID of the post"`
		Tags   string `json:"tags" desc:"Comma-separated list of tags to add"`
	}
	return ability.NewFunction[args](ability.Config{
		Name:        "wrenbot/add-tags",
		Label:       "Add Tags",
		Description: "Adds tags to a post.",
		CanInvoke:   canEditPosts,
	}, func(ctx context.Context, in args) (any, error) {
		if err := store.AddTags(ctx, in.PostID, strings.Split(in.Tags, ",")); err != nil {
			return nil, err
		}
		return fmt.Sprintf("Successfully added tags to post %d", in.PostID), nil
	})
}

func NewGetPostContent(store ContentStore) (ability.Ability, error) {
	type args struct {
		PostID int64 `json:"post_id" desc:"The ID of the post to retrieve"`
	}
	return ability.NewFunction[args](ability.Config{
		Name:        "wrenbot/get-post-content",
		Label:       "Get Post Content",
		Description: "Retrieves details and content of a post by ID.",
		CanInvoke:   canEditPosts,
	}, func(ctx context.Context, in args) (any, error) {
		post, err := store.GetPost(ctx, in.PostID)
		if errors.Is(err, content.ErrPostNotFound) {
			// A miss is an answer the model should see, not a failure.
			return "Post not found.", nil
		}
		if err != nil {
			return nil, err
		}
		return jsonPayload(map[string]any{
			"id":      post.ID,
			"title":   post.Title,
			"content": post.Content,
			"status":  post.Status,
			"link":    fmt.Sprintf("/posts/%d", post.ID),
		})
	})
}

func NewSearchPosts(store ContentStore) (ability.Ability, error) {
	type args struct {
		Search string `json:"search" desc:"The search term (title)"`
	}
	return ability.NewFunction[args](ability.Config{
		Name:        "wrenbot/search-posts",
		Label:       "Search Posts",
		Description: "Searches for posts by title and returns their IDs.",
		CanInvoke:   canEditPosts,
	}, func(ctx context.Context, in args) (any, error) {
		posts, err := store.SearchPosts(ctx, in.Search, 0)
		if err != nil {
			return nil, err
		}
		if len(posts) == 0 {
			return "No posts found for that search term.", nil
		}
		results := make([]map[string]any, 0, len(posts))
		for _, p := range posts {
			results = append(results, map[string]any{
				"id":     p.ID,
				"title":  p.Title,
				"status": p.Status,
			})
		}
		return jsonPayload(results)
	})
}

func jsonPayload(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
