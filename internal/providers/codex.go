package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/j-veylop/quotabar/internal/models"
	"github.com/j-veylop/quotabar/internal/secrets"
)

const (
	codexID        = "codex"
	codexUsageURL  = "https://chatgpt.com/backend-api/wham/usage"
	codexProbeURL  = openaiBaseURL + "/v1/models"
	codexAuthDir   = ".codex"
	codexAuthFname = "auth.json"
)

// codexAuthFile mirrors the auth.json written by `codex login`.
type codexAuthFile struct {
	Tokens struct {
		AccessToken string `json:"access_token"`
		AccountID   string `json:"account_id"`
	} `json:"tokens"`
}

type codexConfigFile struct {
	APIKey string `json:"api_key"`
}

type codexUsageResponse struct {
	PlanType  string `json:"plan_type"`
	RateLimit struct {
		Primary   *codexRateWindow `json:"primary"`
		Secondary *codexRateWindow `json:"secondary"`
	} `json:"rate_limit"`
}

type codexRateWindow struct {
	UsedPercent        float64 `json:"used_percent"`
	LimitWindowSeconds int64   `json:"limit_window_seconds"`
	ResetsAt           int64   `json:"resets_at"`
}

func newCodex(deps Deps) *Provider {
	p := &Provider{
		meta: models.ProviderMetadata{
			ID:            codexID,
			Name:          "Codex",
			SupportsLogin: true,
			AuthMethods:   []models.AuthMethod{models.AuthCli, models.AuthAPIToken},
		},
		deps:      deps,
		loginHint: "run `codex login`, then refresh",
	}
	p.resolveSecret = p.resolveCodexSecret
	p.fetch = p.fetchCodexUsage
	return p
}

func (p *Provider) codexAuthPath() string {
	return filepath.Join(p.deps.Home, codexAuthDir, codexAuthFname)
}

// codexConfigDir follows the Codex CLI's platform conventions.
func (p *Provider) codexConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := p.deps.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "codex")
		}
	case "darwin":
		return filepath.Join(p.deps.Home, "Library", "Application Support", "codex")
	}
	if xdg := p.deps.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codex")
	}
	return filepath.Join(p.deps.Home, ".config", "codex")
}

// codexCLIAuth reads auth.json and returns the ChatGPT access token and
// account id, or empty strings when the CLI has not logged in.
func (p *Provider) codexCLIAuth() (token, accountID string) {
	data, err := os.ReadFile(p.codexAuthPath())
	if err != nil {
		return "", ""
	}
	var auth codexAuthFile
	if err := json.Unmarshal(data, &auth); err != nil {
		return "", ""
	}
	return strings.TrimSpace(auth.Tokens.AccessToken), strings.TrimSpace(auth.Tokens.AccountID)
}

// resolveCodexSecret prefers the Codex CLI login, then falls back through
// the settings override, CODEX_API_KEY, the CLI config directory, our own
// store, and finally OPENAI_API_KEY.
func (p *Provider) resolveCodexSecret(_ context.Context) (*secrets.Secret, error) {
	if token, _ := p.codexCLIAuth(); token != "" {
		return secrets.FromString(token), nil
	}
	if key := p.deps.APIKey(codexID); key != "" {
		return secrets.FromString(key), nil
	}
	if key := strings.TrimSpace(p.deps.Getenv("CODEX_API_KEY")); key != "" {
		return secrets.FromString(key), nil
	}
	if secret := p.codexConfigCredential(); secret != nil {
		return secret, nil
	}

	secret, err := p.deps.Store.Get(codexID)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, secrets.ErrNotFound) {
		return nil, err
	}

	if key := strings.TrimSpace(p.deps.Getenv("OPENAI_API_KEY")); key != "" {
		return secrets.FromString(key), nil
	}
	return nil, NewError(KindNotAuthenticated, codexID, "no Codex credential found; run `codex login`")
}

// codexConfigCredential reads api_key from the CLI's config.json, or an
// OPENAI_API_KEY= line from its .env.
func (p *Provider) codexConfigCredential() *secrets.Secret {
	dir := p.codexConfigDir()

	if data, err := os.ReadFile(filepath.Join(dir, "config.json")); err == nil {
		var cfg codexConfigFile
		if err := json.Unmarshal(data, &cfg); err == nil {
			if key := strings.TrimSpace(cfg.APIKey); key != "" {
				return secrets.FromString(key)
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(dir, ".env")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "OPENAI_API_KEY=") {
				value := strings.Trim(strings.TrimPrefix(line, "OPENAI_API_KEY="), ` "`)
				if value != "" {
					return secrets.FromString(value)
				}
			}
		}
	}
	return nil
}

// fetchCodexUsage queries the ChatGPT usage endpoint when the CLI login is
// present, and otherwise probes the OpenAI API to confirm the key works.
func (p *Provider) fetchCodexUsage(ctx context.Context, secret *secrets.Secret) (*models.UsageSnapshot, error) {
	_, accountID := p.codexCLIAuth()
	if accountID != "" {
		return p.fetchCodexChatGPTUsage(ctx, secret, accountID)
	}
	return p.probeCodexAPIKey(ctx, secret)
}

func (p *Provider) fetchCodexChatGPTUsage(ctx context.Context, secret *secrets.Secret, accountID string) (*models.UsageSnapshot, error) {
	headers := map[string]string{
		"Content-Type":       "application/json",
		"ChatGPT-Account-Id": accountID,
	}
	_ = secret.WithValue(func(b []byte) error {
		headers["Authorization"] = "Bearer " + string(b)
		return nil
	})

	status, body, err := p.httpGet(ctx, codexUsageURL, headers)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, NewHTTPError(KindNotAuthenticated, codexID, status, "ChatGPT session rejected; run `codex login` again")
	case http.StatusTooManyRequests:
		return nil, NewHTTPError(KindRateLimited, codexID, status, "rate limited by usage endpoint")
	default:
		return nil, NewHTTPError(KindParseFailure, codexID, status, string(body))
	}

	var usage codexUsageResponse
	if err := json.Unmarshal(body, &usage); err != nil {
		return nil, NewError(KindParseFailure, codexID, "failed to parse usage response: "+err.Error())
	}

	snapshot := models.NewUsageSnapshot()
	if usage.PlanType != "" {
		snapshot.Identity = &models.IdentitySnapshot{Plan: usage.PlanType}
	}
	snapshot.Primary = codexWindow(usage.RateLimit.Primary)
	snapshot.Secondary = codexWindow(usage.RateLimit.Secondary)
	return snapshot, nil
}

// probeCodexAPIKey confirms an API key works. Key-based billing has no
// session windows, so the snapshot reports zero usage.
func (p *Provider) probeCodexAPIKey(ctx context.Context, secret *secrets.Secret) (*models.UsageSnapshot, error) {
	headers := map[string]string{}
	_ = secret.WithValue(func(b []byte) error {
		headers["Authorization"] = "Bearer " + string(b)
		return nil
	})

	status, body, err := p.httpGet(ctx, codexProbeURL, headers)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, NewHTTPError(KindNotAuthenticated, codexID, status, "API key rejected")
	case http.StatusTooManyRequests:
		return nil, NewHTTPError(KindRateLimited, codexID, status, "rate limited by models endpoint")
	default:
		return nil, NewHTTPError(KindParseFailure, codexID, status, string(body))
	}

	snapshot := models.NewUsageSnapshot()
	snapshot.Identity = &models.IdentitySnapshot{Plan: "Connected"}
	snapshot.Primary = &models.RateWindow{
		UsedPercent:      0,
		ResetDescription: "Uses OpenAI API",
	}
	return snapshot, nil
}

func codexWindow(w *codexRateWindow) *models.RateWindow {
	if w == nil {
		return nil
	}
	minutes := w.LimitWindowSeconds / 60
	window := &models.RateWindow{
		UsedPercent:      w.UsedPercent,
		WindowMinutes:    minutes,
		ResetDescription: codexWindowLabel(minutes),
	}
	if w.ResetsAt > 0 {
		t := time.Unix(w.ResetsAt, 0).UTC()
		window.ResetsAt = &t
	}
	return window
}

// codexWindowLabel humanizes a window length, e.g. 300 minutes -> "5h limit".
func codexWindowLabel(minutes int64) string {
	switch {
	case minutes <= 0:
		return "Usage limit"
	case minutes < 1440:
		hours := (minutes + 59) / 60
		return fmt.Sprintf("%dh limit", hours)
	default:
		days := (minutes + 1439) / 1440
		return fmt.Sprintf("%dd limit", days)
	}
}
