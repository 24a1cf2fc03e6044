// internal/common/auth/identity.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"admitbridge/internal/common/config"
	httpclient "admitbridge/internal/common/http"
	"admitbridge/internal/models"
)

// Resolver turns a bearer token into a resolved Identity. The HTTP handlers
// depend on this interface so tests can inject a static resolver.
type Resolver interface {
	Resolve(ctx context.Context, token string) (models.Identity, error)
}

// KeycloakResolver resolves identities through Keycloak token introspection.
type KeycloakResolver struct {
	cfg    config.AuthConfig
	client *httpclient.Client
}

func NewKeycloakResolver(cfg config.AuthConfig) *KeycloakResolver {
	return &KeycloakResolver{
		cfg:    cfg,
		client: httpclient.NewClient(10 * time.Second),
	}
}

type introspection struct {
	Active   bool   `json:"active"`
	Sub      string `json:"sub"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone_number"`
}

func (r *KeycloakResolver) Resolve(ctx context.Context, token string) (models.Identity, error) {
	endpoint := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect",
		r.cfg.Keycloak.URL, r.cfg.Keycloak.Realm)

	form := url.Values{}
	form.Set("token", token)
	form.Set("client_id", r.cfg.Keycloak.ClientID)
	form.Set("client_secret", r.cfg.Keycloak.ClientSecret)

	resp, err := r.client.PostForm(ctx, endpoint, form)
	if err != nil {
		return models.Identity{}, fmt.Errorf("introspect token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Identity{}, fmt.Errorf("introspect token: status %d: %s", resp.StatusCode, body)
	}

	var intro introspection
	if err := json.NewDecoder(resp.Body).Decode(&intro); err != nil {
		return models.Identity{}, fmt.Errorf("decode introspection response: %w", err)
	}
	if !intro.Active {
		return models.Identity{}, fmt.Errorf("token is not active")
	}

	return models.Identity{
		UserID:   intro.Sub,
		TenantID: intro.TenantID,
		Role:     intro.Role,
		FullName: intro.Name,
		Email:    intro.Email,
		Phone:    intro.Phone,
	}, nil
}

// StaticResolver returns a fixed identity for every token; used in tests and
// local development.
type StaticResolver struct {
	Identity models.Identity
}

func (s StaticResolver) Resolve(context.Context, string) (models.Identity, error) {
	return s.Identity, nil
}
