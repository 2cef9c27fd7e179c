package repo

import (
	"context"
	"errors"

	"github.com/mickamy/ormgraph/example/model"
	"github.com/mickamy/ormgraph/orm"
	"github.com/mickamy/ormgraph/scope"
)

// UserRepository wraps the blog models with a repository pattern.
type UserRepository struct {
	db orm.Querier
	m  *model.Models
}

func NewUserRepository(db orm.Querier, m *model.Models) *UserRepository {
	return &UserRepository{db: db, m: m}
}

// Create inserts a user together with its posts.
func (r *UserRepository) Create(ctx context.Context, name, email string, posts ...orm.Values) (*orm.Instance, error) {
	return r.m.User.Create(ctx, r.db, orm.Values{
		"name":  name,
		"email": email,
		"posts": posts,
	}, &orm.CreateOptions{Include: []*orm.Include{orm.Preload("posts")}})
}

// FindByID loads a user with every post and its tags, newest post first.
func (r *UserRepository) FindByID(ctx context.Context, id any) (*orm.Instance, error) {
	return r.m.User.FindByPK(ctx, r.db, id, &orm.FindOptions{
		Include: []*orm.Include{{
			As:      "posts",
			Order:   []scope.Order{scope.Desc("id")},
			Include: []*orm.Include{orm.Preload("tags")},
		}},
	})
}

// FindAllWithLatestPosts loads every user with at most n of their most
// recent posts.
func (r *UserRepository) FindAllWithLatestPosts(ctx context.Context, n int, scopes ...scope.Scope) ([]*orm.Instance, error) {
	return orm.Find(r.db, r.m.User).
		Scopes(scopes...).
		OrderBy(scope.Asc("id")).
		Include(&orm.Include{As: "posts", Order: []scope.Order{scope.Desc("id")}, Limit: orm.Ptr(n)}).
		All(ctx)
}

// Tag attaches tags to a post, creating the tags that do not exist yet.
func (r *UserRepository) Tag(ctx context.Context, post *orm.Instance, names ...string) error {
	tags, err := r.m.Post.ManyAccessor("tags")
	if err != nil {
		return err
	}
	return orm.Transaction(ctx, r.db, func(q orm.Querier) error {
		targets := make([]any, 0, len(names))
		for _, name := range names {
			tag, err := r.m.Tag.FindOne(ctx, q, &orm.FindOptions{Where: []scope.Cond{scope.Eq("name", name)}})
			if errors.Is(err, orm.ErrNotFound) {
				tag, err = r.m.Tag.Create(ctx, q, orm.Values{"name": name}, nil)
			}
			if err != nil {
				return err
			}
			targets = append(targets, tag)
		}
		return tags.Add(ctx, q, post, targets...)
	})
}

func (r *UserRepository) Rename(ctx context.Context, u *orm.Instance, name string) error {
	u.Set("name", name)
	return r.m.User.Update(ctx, r.db, u, "name")
}

// Delete removes a user; its posts go with it.
func (r *UserRepository) Delete(ctx context.Context, id any) error {
	_, err := r.m.User.DestroyWhere(ctx, r.db, scope.Eq("id", id))
	return err
}
