package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"example.com/blogfeed/internal/apperr"
	"example.com/blogfeed/internal/logger"
	"example.com/blogfeed/internal/models"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
)

var logg = logger.New()

const maxRequestBytes = 1 << 20

// ContentService is the set of operations exposed through GraphQL.
type ContentService interface {
	CreateUser(ctx context.Context, email, name, password string) (*models.User, error)
	GetCurrentUser(ctx context.Context, id models.Identity) (*models.User, error)
	UpdateStatus(ctx context.Context, id models.Identity, status string) (*models.User, error)
	OwnedPosts(ctx context.Context, user *models.User) ([]models.Post, error)
	GetCreator(ctx context.Context, creatorID string) (*models.User, error)
	CreatePost(ctx context.Context, id models.Identity, title, content, imageURL string) (*models.Post, error)
	ListPosts(ctx context.Context, id models.Identity, page int) (*models.PostPage, error)
	GetPost(ctx context.Context, id models.Identity, postID string) (*models.Post, error)
	UpdatePost(ctx context.Context, id models.Identity, postID, title, content string) (*models.Post, error)
	DeletePost(ctx context.Context, id models.Identity, postID string) (bool, error)
}

// Authenticator issues session tokens on login.
type Authenticator interface {
	IssueToken(ctx context.Context, email, password string) (*models.AuthData, error)
}

// Observer is notified once per executed root field.
type Observer interface {
	ObserveGraphQL(operation, outcome string)
}

type Gateway struct {
	schema   graphql.Schema
	content  ContentService
	auth     Authenticator
	observer Observer
}

func New(content ContentService, auth Authenticator) (*Gateway, error) {
	g := &Gateway{
		content: content,
		auth:    auth,
	}
	schema, err := g.newSchema()
	if err != nil {
		return nil, fmt.Errorf("build graphql schema: %w", err)
	}
	g.schema = schema
	return g, nil
}

// SetObserver sets the operation observer (optional dependency).
func (g *Gateway) SetObserver(o Observer) {
	g.observer = o
}

// Request is a GraphQL request in the common JSON transport shape.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// Response is what goes back on the wire. Errors are already formatted.
type Response struct {
	Data   any   `json:"data"`
	Errors []any `json:"errors,omitempty"`
}

// Execute runs req against the schema. The caller identity must already
// be in ctx.
func (g *Gateway) Execute(ctx context.Context, req Request) Response {
	res := graphql.Do(graphql.Params{
		Schema:         g.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
	return Response{
		Data:   res.Data,
		Errors: FormatErrors(res.Errors),
	}
}

// ServeHTTP handles POST (JSON body) and GET (query string) requests.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request

	switch r.Method {
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logg.Info("gateway", "Invalid request body: "+err.Error())
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
			return
		}
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if vars := q.Get("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Variables are invalid JSON"})
				return
			}
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "GraphQL only supports GET and POST requests"})
		return
	}

	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, Response{Errors: []any{map[string]string{"message": "Must provide query string."}}})
		return
	}

	writeJSON(w, http.StatusOK, g.Execute(r.Context(), req))
}

// appError is the wire shape of an error raised by an operation.
type appError struct {
	Message string              `json:"message"`
	Status  int                 `json:"status"`
	Data    []apperr.FieldError `json:"data,omitempty"`
}

// FormatErrors reshapes operation errors into {message, status, data}.
// Errors raised by the GraphQL engine itself (syntax, validation,
// coercion) are passed through as they are. Anything that is not an
// application error is logged and hidden behind a generic message.
func FormatErrors(errs []gqlerrors.FormattedError) []any {
	if len(errs) == 0 {
		return nil
	}

	out := make([]any, 0, len(errs))
	for _, fe := range errs {
		orig := causeOf(fe)
		if orig == nil {
			out = append(out, fe)
			continue
		}

		if ae, ok := apperr.As(orig); ok {
			status := ae.Code
			if status == 0 {
				status = http.StatusInternalServerError
			}
			out = append(out, appError{Message: ae.Message, Status: status, Data: ae.Data})
			continue
		}

		logg.Error("gateway", "Unhandled error in resolver", orig)
		out = append(out, appError{Message: "Oops, something went wrong", Status: http.StatusInternalServerError})
	}
	return out
}

// causeOf digs the resolver error out of the engine's located errors.
// It is nil for errors the engine raised on its own.
func causeOf(fe gqlerrors.FormattedError) error {
	err := fe.OriginalError()
	for i := 0; i < 4 && err != nil; i++ {
		var located *gqlerrors.Error
		if !errors.As(err, &located) {
			return err
		}
		err = located.OriginalError
	}
	return err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("gateway", "Failed to encode response", err)
	}
}
