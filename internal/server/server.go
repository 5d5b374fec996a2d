package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"ideaforge/internal/config"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"idea not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the IdeaForge API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("IdeaForge API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDevAuth(group, cfg.Auth)
	registerMe(group)
	registerUsers(group, cfg.Engine)
	registerIdeas(group, cfg.Engine)
	registerEngagement(group, cfg.Engine)
	registerDelegations(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerSweep(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerSettings(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrNotAuthorized) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrAlreadyResolved) {
		return newAPIError(http.StatusConflict, "already_resolved", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrPendingExists) {
		return newAPIError(http.StatusConflict, "pending_delegation_exists", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "concurrently"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "cannot"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		"/" + strings.TrimPrefix(path.Join(basePath, "health"), "/"):         true,
		"/" + strings.TrimPrefix(path.Join(basePath, "auth/dev/login"), "/"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>IdeaForge API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		userID := strings.TrimSpace(input.Body.UserID)
		if userID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		token, err := signToken(authCfg.JWTSecret, userID)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok || principal.UserID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{UserID: principal.UserID, Source: principal.Source}}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register a user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		nickname := ""
		if input.Body.Nickname != nil {
			nickname = *input.Body.Nickname
		}
		u, err := e.CreateUser(ctx, input.Body.WalletAddress, nickname)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique") {
				return nil, newAPIError(http.StatusConflict, "wallet_taken", "wallet address already registered", nil)
			}
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		users, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: users}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := e.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerIdeas(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-idea",
		Method:        http.MethodPost,
		Path:          "/ideas",
		Summary:       "Submit an idea",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateIdeaRequest `json:"body"`
	}) (*struct {
		Body domain.Idea `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		idea, err := e.CreateIdea(ctx, engine.IdeaCreateOptions{
			OwnerUserID: userID,
			Title:       input.Body.Title,
			Target:      input.Body.Target,
			Why:         input.Body.Why,
			What:        input.Body.What,
			How:         input.Body.How,
			Impact:      input.Body.Impact,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Idea `json:"body"`
		}{Body: idea}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-ideas",
		Method:      http.MethodGet,
		Path:        "/ideas",
		Summary:     "List ideas",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"idea,pre-draft,draft,commit,in-progress,test,finish,archive" required:"false"`
		Owner  string `query:"owner" required:"false"`
		Limit  int    `query:"limit" required:"false"`
	}) (*struct {
		Body []domain.Idea `json:"body"`
	}, error) {
		ideas, err := e.Repo.ListIdeas(ctx, repo.IdeaFilters{
			Status:      input.Status,
			OwnerUserID: input.Owner,
			Limit:       input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Idea `json:"body"`
		}{Body: ideas}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-idea",
		Method:      http.MethodGet,
		Path:        "/ideas/{idea_id}",
		Summary:     "Get idea",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
	}) (*struct {
		Body domain.Idea `json:"body"`
	}, error) {
		idea, err := e.Repo.GetIdea(ctx, input.IdeaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Idea `json:"body"`
		}{Body: idea}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-idea",
		Method:      http.MethodPatch,
		Path:        "/ideas/{idea_id}",
		Summary:     "Edit idea content (owner only)",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IdeaID string            `path:"idea_id"`
		Body   UpdateIdeaRequest `json:"body"`
	}) (*struct {
		Body domain.Idea `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		idea, err := e.Repo.GetIdea(ctx, input.IdeaID)
		if err != nil {
			return nil, handleError(err)
		}
		apply := func(dst *string, src *string) {
			if src != nil {
				*dst = *src
			}
		}
		apply(&idea.Title, input.Body.Title)
		apply(&idea.Target, input.Body.Target)
		apply(&idea.Why, input.Body.Why)
		apply(&idea.What, input.Body.What)
		apply(&idea.How, input.Body.How)
		apply(&idea.Impact, input.Body.Impact)
		updated, err := e.UpdateIdeaContent(ctx, idea, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Idea `json:"body"`
		}{Body: updated}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-idea",
		Method:      http.MethodPost,
		Path:        "/ideas/{idea_id}/archive",
		Summary:     "Archive an idea",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
	}) (*struct {
		Body domain.Idea `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		idea, err := e.ArchiveIdea(ctx, input.IdeaID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Idea `json:"body"`
		}{Body: idea}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-idea",
		Method:      http.MethodPost,
		Path:        "/ideas/{idea_id}/advance",
		Summary:     "Manually move an idea one stage forward (owner only)",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
	}) (*struct {
		Body domain.Idea `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		idea, err := e.AdvanceIdea(ctx, input.IdeaID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Idea `json:"body"`
		}{Body: idea}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "idea-history",
		Method:      http.MethodGet,
		Path:        "/ideas/{idea_id}/history",
		Summary:     "Progression history for an idea",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
	}) (*struct {
		Body []domain.Progression `json:"body"`
	}, error) {
		if _, err := e.Repo.GetIdea(ctx, input.IdeaID); err != nil {
			return nil, handleError(err)
		}
		hist, err := e.History.List(ctx, input.IdeaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Progression `json:"body"`
		}{Body: hist}, nil
	})
}

func registerEngagement(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "toggle-like",
		Method:      http.MethodPost,
		Path:        "/ideas/{idea_id}/like",
		Summary:     "Toggle a like; may promote the idea inline",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
	}) (*struct {
		Body LikeResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		idea, liked, err := e.ToggleLike(ctx, input.IdeaID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LikeResponse `json:"body"`
		}{Body: LikeResponse{Idea: idea, Liked: liked}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-comment",
		Method:        http.MethodPost,
		Path:          "/ideas/{idea_id}/comments",
		Summary:       "Comment on an idea",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		IdeaID string               `path:"idea_id"`
		Body   CreateCommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddComment(ctx, input.IdeaID, userID, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/ideas/{idea_id}/comments",
		Summary:     "List comments on an idea",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
	}) (*struct {
		Body []domain.Comment `json:"body"`
	}, error) {
		if _, err := e.Repo.GetIdea(ctx, input.IdeaID); err != nil {
			return nil, handleError(err)
		}
		comments, err := e.Repo.ListComments(ctx, input.IdeaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Comment `json:"body"`
		}{Body: comments}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "request-collaboration",
		Method:        http.MethodPost,
		Path:          "/ideas/{idea_id}/collaborations",
		Summary:       "Ask to collaborate on an idea",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		IdeaID string                     `path:"idea_id"`
		Body   CreateCollaborationRequest `json:"body"`
	}) (*struct {
		Body domain.Collaboration `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		message := ""
		if input.Body.Message != nil {
			message = *input.Body.Message
		}
		c, err := e.RequestCollaboration(ctx, input.IdeaID, userID, input.Body.Role, message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Collaboration `json:"body"`
		}{Body: c}, nil
	})

	for action, summary := range map[string]string{
		"accept":  "Accept a collaboration request (idea owner only)",
		"decline": "Decline a collaboration request (idea owner only)",
	} {
		accept := action == "accept"
		huma.Register(api, huma.Operation{
			OperationID: action + "-collaboration",
			Method:      http.MethodPost,
			Path:        "/collaborations/{collaboration_id}/" + action,
			Summary:     summary,
			Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnauthorized},
		}, func(ctx context.Context, input *struct {
			CollaborationID string `path:"collaboration_id"`
		}) (*struct {
			Body domain.Collaboration `json:"body"`
		}, error) {
			userID, authErr := userIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			c, err := e.ResolveCollaboration(ctx, input.CollaborationID, userID, accept)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.Collaboration `json:"body"`
			}{Body: c}, nil
		})
	}
}

func registerDelegations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-delegation",
		Method:        http.MethodPost,
		Path:          "/ideas/{idea_id}/delegations",
		Summary:       "Offer ownership to another user (owner only)",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		IdeaID string                  `path:"idea_id"`
		Body   CreateDelegationRequest `json:"body"`
	}) (*struct {
		Body domain.Delegation `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Delegate(ctx, input.IdeaID, userID, input.Body.ToUserID)
		if err != nil {
			return nil, handleError(err)
		}
		if d == nil {
			return nil, newAPIError(http.StatusConflict, "pending_delegation_exists", "idea already has a pending delegation", nil)
		}
		return &struct {
			Body domain.Delegation `json:"body"`
		}{Body: *d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-delegations",
		Method:      http.MethodGet,
		Path:        "/me/delegations",
		Summary:     "Delegations addressed to the current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pending,accepted,declined" required:"false"`
	}) (*struct {
		Body []domain.Delegation `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ds, err := e.Repo.ListDelegations(ctx, repo.DelegationFilters{ToUserID: userID, Status: input.Status})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Delegation `json:"body"`
		}{Body: ds}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-delegation",
		Method:      http.MethodPost,
		Path:        "/delegations/{delegation_id}/accept",
		Summary:     "Accept an ownership offer",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		DelegationID string `path:"delegation_id"`
	}) (*struct {
		Body domain.Delegation `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.AcceptDelegation(ctx, input.DelegationID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Delegation `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decline-delegation",
		Method:      http.MethodPost,
		Path:        "/delegations/{delegation_id}/decline",
		Summary:     "Decline an ownership offer",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		DelegationID string `path:"delegation_id"`
	}) (*struct {
		Body domain.Delegation `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.DeclineDelegation(ctx, input.DelegationID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Delegation `json:"body"`
		}{Body: d}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/me/notifications",
		Summary:     "Notifications for the current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread" required:"false"`
		Limit  int  `query:"limit" required:"false"`
	}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ns, err := e.Repo.ListNotifications(ctx, repo.NotificationFilters{
			UserID:     userID,
			UnreadOnly: input.Unread,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: ns}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unread-count",
		Method:      http.MethodGet,
		Path:        "/me/notifications/unread-count",
		Summary:     "Unread notification count",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UnreadCountResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.Repo.CountUnreadNotifications(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UnreadCountResponse `json:"body"`
		}{Body: UnreadCountResponse{Unread: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-notification-read",
		Method:      http.MethodPost,
		Path:        "/notifications/{notification_id}/read",
		Summary:     "Mark one notification read",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.MarkNotificationRead(ctx, input.NotificationID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "read"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-all-notifications-read",
		Method:      http.MethodPost,
		Path:        "/me/notifications/read-all",
		Summary:     "Mark all notifications read",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MarkAllReadResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.Repo.MarkAllNotificationsRead(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MarkAllReadResponse `json:"body"`
		}{Body: MarkAllReadResponse{Marked: n}}, nil
	})
}

func registerSweep(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "run-sweep",
		Method:      http.MethodPost,
		Path:        "/sweep",
		Summary:     "Run one promotion and delegation sweep",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SweepResponse `json:"body"`
	}, error) {
		res, err := e.RunSweep(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SweepResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "progression-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Lifecycle distribution and progression rate",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Stats `json:"body"`
	}, error) {
		stats, err := e.ProgressionStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Stats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerSettings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/settings",
		Summary:     "Active rule table and engine tuning",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body config.Config `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetSettings(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return &struct {
					Body config.Config `json:"body"`
				}{Body: *e.Config}, nil
			}
			return nil, handleError(err)
		}
		return &struct {
			Body config.Config `json:"body"`
		}{Body: *cfg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPut,
		Path:        "/settings",
		Summary:     "Replace the rule table and engine tuning",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body config.Config `json:"body"`
	}) (*struct {
		Body config.Config `json:"body"`
	}, error) {
		cfg := input.Body
		if err := cfg.Validate(); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		if err := e.Repo.UpsertSettings(ctx, &cfg); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body config.Config `json:"body"`
		}{Body: cfg}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Mint an API key for the current user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw, key, err := e.MintAPIKey(ctx, userID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, Name: key.Name, Key: raw, CreatedAt: key.CreatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys for the current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})
}
