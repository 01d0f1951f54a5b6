package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/j-veylop/quotabar/internal/models"
	"github.com/j-veylop/quotabar/internal/secrets"
)

const (
	claudeID              = "claude"
	claudeBaseURL         = "https://api.anthropic.com"
	claudeOAuthBetaHeader = "oauth-2025-04-20"

	// Keychain entry written by the Claude Code CLI on macOS.
	claudeCLIKeychainService = "Claude Code-credentials"
	claudeCLIKeychainUser    = "default"
)

// claudeStoredCredentials mirrors the CLI's credentials.json layout.
type claudeStoredCredentials struct {
	ClaudeAIOAuth struct {
		AccessToken string `json:"accessToken"`
	} `json:"claudeAiOauth"`
}

type claudeUsageResponse struct {
	FiveHour       *claudeUsageWindow `json:"five_hour"`
	SevenDay       *claudeUsageWindow `json:"seven_day"`
	SevenDaySonnet *claudeUsageWindow `json:"seven_day_sonnet"`
}

type claudeUsageWindow struct {
	Utilization float64 `json:"utilization"`
	ResetsAt    string  `json:"resets_at"`
}

func newClaude(deps Deps) *Provider {
	p := &Provider{
		meta: models.ProviderMetadata{
			ID:            claudeID,
			Name:          "Claude",
			SupportsLogin: true,
			AuthMethods:   []models.AuthMethod{models.AuthOAuth},
		},
		deps:      deps,
		loginHint: "sign in at https://claude.ai/login, then authenticate the Claude Code CLI",
	}
	p.resolveSecret = p.resolveClaudeSecret
	p.fetch = p.fetchClaudeUsage
	return p
}

func claudeCredentialsPath(home string) string {
	return filepath.Join(home, ".claude", ".credentials.json")
}

// resolveClaudeSecret scans credential sources in priority order: the
// settings override, the CLI credentials file, the CLI keychain entry, then
// our own store.
func (p *Provider) resolveClaudeSecret(_ context.Context) (*secrets.Secret, error) {
	if key := p.deps.APIKey(claudeID); key != "" {
		return secrets.FromString(key), nil
	}
	if secret := p.claudeFileCredential(); secret != nil {
		return secret, nil
	}
	if secret := p.claudeKeychainCredential(); secret != nil {
		return secret, nil
	}

	secret, err := p.deps.Store.Get(claudeID)
	if err == nil {
		return secret, nil
	}
	if errors.Is(err, secrets.ErrNotFound) {
		return nil, NewError(KindNotAuthenticated, claudeID, "no Claude credential found; log in with the Claude Code CLI")
	}
	return nil, err
}

// claudeFileCredential reads the CLI's ~/.claude/.credentials.json drop.
// Only tokens with the expected sk-ant- prefix are accepted.
func (p *Provider) claudeFileCredential() *secrets.Secret {
	data, err := os.ReadFile(claudeCredentialsPath(p.deps.Home))
	if err != nil {
		return nil
	}
	var creds claudeStoredCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil
	}
	token := strings.TrimSpace(creds.ClaudeAIOAuth.AccessToken)
	if !strings.HasPrefix(token, "sk-ant-") {
		return nil
	}
	return secrets.FromString(token)
}

// claudeKeychainCredential reads the CLI keychain entry, which holds either
// the same JSON document as the credentials file or a bare token.
func (p *Provider) claudeKeychainCredential() *secrets.Secret {
	stored, err := p.deps.ClaudeCLI.Get(claudeCLIKeychainUser)
	if err != nil {
		return nil
	}
	defer stored.Zero()

	var token string
	_ = stored.WithValue(func(b []byte) error {
		trimmed := strings.TrimSpace(string(b))
		var creds claudeStoredCredentials
		if err := json.Unmarshal([]byte(trimmed), &creds); err == nil {
			if t := strings.TrimSpace(creds.ClaudeAIOAuth.AccessToken); t != "" {
				token = t
				return nil
			}
		}
		if strings.HasPrefix(trimmed, "sk-ant-") {
			token = trimmed
		}
		return nil
	})
	if token == "" {
		return nil
	}
	return secrets.FromString(token)
}

func (p *Provider) fetchClaudeUsage(ctx context.Context, secret *secrets.Secret) (*models.UsageSnapshot, error) {
	headers := map[string]string{
		"Content-Type":   "application/json",
		"anthropic-beta": claudeOAuthBetaHeader,
	}
	_ = secret.WithValue(func(b []byte) error {
		headers["Authorization"] = "Bearer " + string(b)
		return nil
	})

	status, body, err := p.httpGet(ctx, claudeBaseURL+"/api/oauth/usage", headers)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized:
		// The stored copy is stale; clear it so the next login starts clean.
		_ = p.deps.Store.Delete(claudeID)
		return nil, NewHTTPError(KindNotAuthenticated, claudeID, status, "access token rejected")
	case http.StatusForbidden:
		return nil, NewHTTPError(KindUnsupported, claudeID, status, "token missing user:profile scope")
	case http.StatusTooManyRequests:
		return nil, NewHTTPError(KindRateLimited, claudeID, status, "rate limited by usage endpoint")
	default:
		return nil, NewHTTPError(KindParseFailure, claudeID, status, string(body))
	}

	var usage claudeUsageResponse
	if err := json.Unmarshal(body, &usage); err != nil {
		return nil, NewError(KindParseFailure, claudeID, "failed to parse usage response: "+err.Error())
	}

	snapshot := models.NewUsageSnapshot()
	snapshot.Primary = claudeRateWindow(usage.FiveHour, 300, "5h session limit")
	snapshot.Secondary = claudeRateWindow(usage.SevenDay, 10080, "Weekly limit")
	snapshot.Tertiary = claudeRateWindow(usage.SevenDaySonnet, 10080, "Sonnet limit")
	return snapshot, nil
}

func claudeRateWindow(w *claudeUsageWindow, minutes int64, label string) *models.RateWindow {
	if w == nil {
		return nil
	}
	window := &models.RateWindow{
		UsedPercent:      w.Utilization,
		WindowMinutes:    minutes,
		ResetDescription: label,
	}
	if w.ResetsAt != "" {
		if t, err := time.Parse(time.RFC3339, w.ResetsAt); err == nil {
			utc := t.UTC()
			window.ResetsAt = &utc
		}
	}
	return window
}
