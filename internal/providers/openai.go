package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/j-veylop/quotabar/internal/models"
	"github.com/j-veylop/quotabar/internal/secrets"
)

const (
	openaiID      = "openai"
	openaiBaseURL = "https://api.openai.com"
)

type openaiSubscription struct {
	HardLimitUSD float64 `json:"hard_limit_usd"`
	Plan         struct {
		Title string `json:"title"`
	} `json:"plan"`
}

type openaiUsage struct {
	// TotalUsage is reported in cents.
	TotalUsage float64 `json:"total_usage"`
}

func newOpenAI(deps Deps) *Provider {
	p := &Provider{
		meta: models.ProviderMetadata{
			ID:          openaiID,
			Name:        "OpenAI",
			AuthMethods: []models.AuthMethod{models.AuthAPIToken},
		},
		deps:      deps,
		loginHint: "add an OpenAI API key in settings or set OPENAI_API_KEY",
	}
	p.resolveSecret = p.resolveOpenAISecret
	p.fetch = p.fetchOpenAIUsage
	return p
}

// resolveOpenAISecret scans the settings override, OPENAI_API_KEY, the
// ~/.openai/credentials file, then our own store.
func (p *Provider) resolveOpenAISecret(_ context.Context) (*secrets.Secret, error) {
	if key := p.deps.APIKey(openaiID); key != "" {
		return secrets.FromString(key), nil
	}
	if key := strings.TrimSpace(p.deps.Getenv("OPENAI_API_KEY")); key != "" {
		return secrets.FromString(key), nil
	}
	if secret := p.openaiFileCredential(); secret != nil {
		return secret, nil
	}

	secret, err := p.deps.Store.Get(openaiID)
	if err == nil {
		return secret, nil
	}
	if errors.Is(err, secrets.ErrNotFound) {
		return nil, NewError(KindNotAuthenticated, openaiID, "no OpenAI API key configured")
	}
	return nil, err
}

// openaiFileCredential reads ~/.openai/credentials, accepting either an
// OPENAI_API_KEY= line or a bare sk- key.
func (p *Provider) openaiFileCredential() *secrets.Secret {
	data, err := os.ReadFile(filepath.Join(p.deps.Home, ".openai", "credentials"))
	if err != nil {
		return nil
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "OPENAI_API_KEY=") {
			value := strings.Trim(strings.TrimPrefix(line, "OPENAI_API_KEY="), ` "`)
			if value != "" {
				return secrets.FromString(value)
			}
		}
		if strings.HasPrefix(line, "sk-") {
			return secrets.FromString(line)
		}
	}
	return nil
}

// fetchOpenAIUsage queries the billing endpoints and reports month-to-date
// spend against the subscription hard limit.
func (p *Provider) fetchOpenAIUsage(ctx context.Context, secret *secrets.Secret) (*models.UsageSnapshot, error) {
	headers := map[string]string{"Content-Type": "application/json"}
	_ = secret.WithValue(func(b []byte) error {
		headers["Authorization"] = "Bearer " + string(b)
		return nil
	})

	status, body, err := p.httpGet(ctx, openaiBaseURL+"/v1/dashboard/billing/subscription", headers)
	if err != nil {
		return nil, err
	}
	if err := p.checkOpenAIStatus(status, body); err != nil {
		return nil, err
	}
	var sub openaiSubscription
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, NewError(KindParseFailure, openaiID, "failed to parse subscription response: "+err.Error())
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	usageURL := fmt.Sprintf("%s/v1/dashboard/billing/usage?start_date=%s&end_date=%s",
		openaiBaseURL,
		monthStart.Format("2006-01-02"),
		now.AddDate(0, 0, 1).Format("2006-01-02"))

	status, body, err = p.httpGet(ctx, usageURL, headers)
	if err != nil {
		return nil, err
	}
	if err := p.checkOpenAIStatus(status, body); err != nil {
		return nil, err
	}
	var usage openaiUsage
	if err := json.Unmarshal(body, &usage); err != nil {
		return nil, NewError(KindParseFailure, openaiID, "failed to parse usage response: "+err.Error())
	}

	usedUSD := usage.TotalUsage / 100
	limitUSD := sub.HardLimitUSD
	var percent float64
	if limitUSD > 0 {
		percent = usedUSD / limitUSD * 100
		if percent > 100 {
			percent = 100
		}
	}
	resetsAt := monthStart.AddDate(0, 1, 0)

	snapshot := models.NewUsageSnapshot()
	if sub.Plan.Title != "" {
		snapshot.Identity = &models.IdentitySnapshot{Plan: sub.Plan.Title}
	}
	snapshot.Primary = &models.RateWindow{
		UsedPercent:      percent,
		ResetsAt:         &resetsAt,
		ResetDescription: fmt.Sprintf("$%.2f / $%.2f", usedUSD, limitUSD),
	}
	return snapshot, nil
}

func (p *Provider) checkOpenAIStatus(status int, body []byte) error {
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return NewHTTPError(KindNotAuthenticated, openaiID, status, "API key rejected")
	case http.StatusTooManyRequests:
		return NewHTTPError(KindRateLimited, openaiID, status, "rate limited by billing endpoint")
	default:
		return NewHTTPError(KindParseFailure, openaiID, status, string(body))
	}
}
