package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/j-veylop/quotabar/internal/models"
	"github.com/j-veylop/quotabar/internal/secrets"
)

const (
	geminiID      = "gemini"
	geminiBaseURL = "https://generativelanguage.googleapis.com"
)

type geminiModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func newGemini(deps Deps) *Provider {
	p := &Provider{
		meta: models.ProviderMetadata{
			ID:          geminiID,
			Name:        "Gemini",
			AuthMethods: []models.AuthMethod{models.AuthAPIToken},
		},
		deps:      deps,
		loginHint: "add a Gemini API key in settings or set GEMINI_API_KEY",
	}
	p.resolveSecret = p.resolveGeminiSecret
	p.fetch = p.fetchGeminiUsage
	return p
}

// resolveGeminiSecret scans the settings override, GOOGLE_API_KEY,
// GEMINI_API_KEY, then our own store.
func (p *Provider) resolveGeminiSecret(_ context.Context) (*secrets.Secret, error) {
	if key := p.deps.APIKey(geminiID); key != "" {
		return secrets.FromString(key), nil
	}
	for _, env := range []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"} {
		if key := strings.TrimSpace(p.deps.Getenv(env)); key != "" {
			return secrets.FromString(key), nil
		}
	}

	secret, err := p.deps.Store.Get(geminiID)
	if err == nil {
		return secret, nil
	}
	if errors.Is(err, secrets.ErrNotFound) {
		return nil, NewError(KindNotAuthenticated, geminiID, "no Gemini API key configured")
	}
	return nil, err
}

// fetchGeminiUsage validates the key against the models listing. Google
// exposes no quota endpoint for consumer keys, so a successful listing is
// reported as zero usage with the model count as the description.
func (p *Provider) fetchGeminiUsage(ctx context.Context, secret *secrets.Secret) (*models.UsageSnapshot, error) {
	var listURL string
	_ = secret.WithValue(func(b []byte) error {
		listURL = geminiBaseURL + "/v1beta/models?key=" + url.QueryEscape(string(b))
		return nil
	})

	status, body, err := p.httpGet(ctx, listURL, nil)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, NewHTTPError(KindNotAuthenticated, geminiID, status, "API key rejected")
	case http.StatusTooManyRequests:
		return nil, NewHTTPError(KindRateLimited, geminiID, status, "rate limited by models endpoint")
	default:
		return nil, NewHTTPError(KindParseFailure, geminiID, status, string(body))
	}

	var listing geminiModelsResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, NewError(KindParseFailure, geminiID, "failed to parse models response: "+err.Error())
	}

	plan := "Unknown"
	if len(listing.Models) > 0 {
		plan = "Active"
	}

	snapshot := models.NewUsageSnapshot()
	snapshot.Identity = &models.IdentitySnapshot{Plan: plan}
	snapshot.Primary = &models.RateWindow{
		UsedPercent:      0,
		ResetDescription: fmt.Sprintf("%d models available", len(listing.Models)),
	}
	return snapshot, nil
}
