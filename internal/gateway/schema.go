package gateway

import (
	"github.com/graphql-go/graphql"
)

// newSchema builds the GraphQL schema. Resolvers are methods on g.
func (g *Gateway) newSchema() (graphql.Schema, error) {
	userType := graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"_id":      &graphql.Field{Type: graphql.NewNonNull(graphql.ID), Resolve: userField(func(u userSource) any { return u.ID })},
			"name":     &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: userField(func(u userSource) any { return u.Name })},
			"email":    &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: userField(func(u userSource) any { return u.Email })},
			"password": &graphql.Field{Type: graphql.String, Resolve: func(graphql.ResolveParams) (any, error) { return nil, nil }},
			"status":   &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: userField(func(u userSource) any { return u.Status })},
		},
	})

	postType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Post",
		Fields: graphql.Fields{
			"_id":       &graphql.Field{Type: graphql.NewNonNull(graphql.ID), Resolve: postField(func(p postSource) any { return p.ID })},
			"title":     &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: postField(func(p postSource) any { return p.Title })},
			"content":   &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: postField(func(p postSource) any { return p.Content })},
			"imageUrl":  &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: postField(func(p postSource) any { return p.ImageURL })},
			"createdAt": &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: postField(func(p postSource) any { return formatTime(p.CreatedAt) })},
			"updatedAt": &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: postField(func(p postSource) any { return formatTime(p.UpdatedAt) })},
		},
	})

	// User and Post reference each other.
	postType.AddFieldConfig("creator", &graphql.Field{
		Type:    graphql.NewNonNull(userType),
		Resolve: g.resolvePostCreator,
	})
	userType.AddFieldConfig("posts", &graphql.Field{
		Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(postType))),
		Resolve: g.resolveUserPosts,
	})

	authDataType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AuthData",
		Fields: graphql.Fields{
			"token":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"userId": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	postDataType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PostData",
		Fields: graphql.Fields{
			"posts":      &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(postType)))},
			"totalPosts": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		},
	})

	userInputType := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "UserInputData",
		Fields: graphql.InputObjectConfigFieldMap{
			"email":    &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"name":     &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"password": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	postInputType := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "PostInputData",
		Fields: graphql.InputObjectConfigFieldMap{
			"title":    &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"content":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"imageUrl": &graphql.InputObjectFieldConfig{Type: graphql.String},
		},
	})

	postIDArg := &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "RootQuery",
		Fields: graphql.Fields{
			"login": &graphql.Field{
				Type: graphql.NewNonNull(authDataType),
				Args: graphql.FieldConfigArgument{
					"email":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"password": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: g.observed("login", g.resolveLogin),
			},
			"posts": &graphql.Field{
				Type: graphql.NewNonNull(postDataType),
				Args: graphql.FieldConfigArgument{
					"page": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: g.observed("posts", g.resolvePosts),
			},
			"post": &graphql.Field{
				Type:    graphql.NewNonNull(postType),
				Args:    graphql.FieldConfigArgument{"postId": postIDArg},
				Resolve: g.observed("post", g.resolvePost),
			},
			"user": &graphql.Field{
				Type:    graphql.NewNonNull(userType),
				Resolve: g.observed("user", g.resolveUser),
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "RootMutation",
		Fields: graphql.Fields{
			"createUser": &graphql.Field{
				Type:    graphql.NewNonNull(userType),
				Args:    graphql.FieldConfigArgument{"userInput": &graphql.ArgumentConfig{Type: graphql.NewNonNull(userInputType)}},
				Resolve: g.observed("createUser", g.resolveCreateUser),
			},
			"createPost": &graphql.Field{
				Type:    graphql.NewNonNull(postType),
				Args:    graphql.FieldConfigArgument{"postInput": &graphql.ArgumentConfig{Type: graphql.NewNonNull(postInputType)}},
				Resolve: g.observed("createPost", g.resolveCreatePost),
			},
			"updatePost": &graphql.Field{
				Type: graphql.NewNonNull(postType),
				Args: graphql.FieldConfigArgument{
					"postId":    postIDArg,
					"postInput": &graphql.ArgumentConfig{Type: graphql.NewNonNull(postInputType)},
				},
				Resolve: g.observed("updatePost", g.resolveUpdatePost),
			},
			"deletePost": &graphql.Field{
				Type:    graphql.Boolean,
				Args:    graphql.FieldConfigArgument{"postId": postIDArg},
				Resolve: g.observed("deletePost", g.resolveDeletePost),
			},
			"updateStatus": &graphql.Field{
				Type: graphql.NewNonNull(userType),
				Args: graphql.FieldConfigArgument{
					"status": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: g.observed("updateStatus", g.resolveUpdateStatus),
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    query,
		Mutation: mutation,
	})
}
