package gateway

import (
	"errors"
	"time"

	"example.com/blogfeed/internal/middleware"
	"example.com/blogfeed/internal/models"
	"github.com/graphql-go/graphql"
)

type (
	userSource = *models.User
	postSource = *models.Post
)

func asUser(src any) *models.User {
	switch u := src.(type) {
	case *models.User:
		return u
	case models.User:
		return &u
	}
	return nil
}

func asPost(src any) *models.Post {
	switch p := src.(type) {
	case *models.Post:
		return p
	case models.Post:
		return &p
	}
	return nil
}

func userField(get func(userSource) any) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		u := asUser(p.Source)
		if u == nil {
			return nil, nil
		}
		return get(u), nil
	}
}

func postField(get func(postSource) any) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		post := asPost(p.Source)
		if post == nil {
			return nil, nil
		}
		return get(post), nil
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(models.TimeLayout)
}

// observed counts each root field execution by outcome.
func (g *Gateway) observed(name string, fn graphql.FieldResolveFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		res, err := fn(p)
		if g.observer != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			g.observer.ObserveGraphQL(name, outcome)
		}
		return res, err
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func inputArg(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}

// --- Query ---

func (g *Gateway) resolveLogin(p graphql.ResolveParams) (any, error) {
	return g.auth.IssueToken(p.Context, stringArg(p.Args, "email"), stringArg(p.Args, "password"))
}

func (g *Gateway) resolvePosts(p graphql.ResolveParams) (any, error) {
	page := 1
	if v, ok := p.Args["page"].(int); ok {
		page = v
	}
	return g.content.ListPosts(p.Context, middleware.IdentityFromContext(p.Context), page)
}

func (g *Gateway) resolvePost(p graphql.ResolveParams) (any, error) {
	id := middleware.IdentityFromContext(p.Context)
	return g.content.GetPost(p.Context, id, stringArg(p.Args, "postId"))
}

func (g *Gateway) resolveUser(p graphql.ResolveParams) (any, error) {
	return g.content.GetCurrentUser(p.Context, middleware.IdentityFromContext(p.Context))
}

// --- Mutation ---

func (g *Gateway) resolveCreateUser(p graphql.ResolveParams) (any, error) {
	in := inputArg(p.Args, "userInput")
	return g.content.CreateUser(p.Context, stringArg(in, "email"), stringArg(in, "name"), stringArg(in, "password"))
}

func (g *Gateway) resolveCreatePost(p graphql.ResolveParams) (any, error) {
	in := inputArg(p.Args, "postInput")
	id := middleware.IdentityFromContext(p.Context)
	return g.content.CreatePost(p.Context, id, stringArg(in, "title"), stringArg(in, "content"), stringArg(in, "imageUrl"))
}

func (g *Gateway) resolveUpdatePost(p graphql.ResolveParams) (any, error) {
	in := inputArg(p.Args, "postInput")
	id := middleware.IdentityFromContext(p.Context)
	return g.content.UpdatePost(p.Context, id, stringArg(p.Args, "postId"), stringArg(in, "title"), stringArg(in, "content"))
}

func (g *Gateway) resolveDeletePost(p graphql.ResolveParams) (any, error) {
	id := middleware.IdentityFromContext(p.Context)
	return g.content.DeletePost(p.Context, id, stringArg(p.Args, "postId"))
}

func (g *Gateway) resolveUpdateStatus(p graphql.ResolveParams) (any, error) {
	id := middleware.IdentityFromContext(p.Context)
	return g.content.UpdateStatus(p.Context, id, stringArg(p.Args, "status"))
}

// --- Nested ---

func (g *Gateway) resolvePostCreator(p graphql.ResolveParams) (any, error) {
	post := asPost(p.Source)
	if post == nil {
		return nil, errors.New("creator: unexpected source")
	}
	if post.Creator != nil {
		return post.Creator, nil
	}
	return g.content.GetCreator(p.Context, post.CreatorID)
}

func (g *Gateway) resolveUserPosts(p graphql.ResolveParams) (any, error) {
	u := asUser(p.Source)
	if u == nil {
		return nil, errors.New("posts: unexpected source")
	}
	return g.content.OwnedPosts(p.Context, u)
}
