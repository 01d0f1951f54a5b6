// Package providers implements credential resolution and usage fetching for
// each supported AI backend. Every variant is a Provider value whose behavior
// lives in two functions: resolveSecret scans local credential sources without
// touching the network, and fetch queries the backend with a resolved secret.
package providers

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/j-veylop/quotabar/internal/cookies"
	"github.com/j-veylop/quotabar/internal/logger"
	"github.com/j-veylop/quotabar/internal/models"
	"github.com/j-veylop/quotabar/internal/secrets"
)

// CookieSource extracts browser session cookies for providers that accept
// cookie auth.
type CookieSource interface {
	Extract(browser cookies.Browser, domain, name string) (*secrets.Secret, error)
	ExtractAny(domain, name string) (*secrets.Secret, error)
}

// Deps carries the collaborators shared by every provider. Zero fields are
// filled with production defaults by NewRegistry; tests inject fakes.
type Deps struct {
	Store     secrets.Store // our own keyring entries
	ClaudeCLI secrets.Store // the Claude Code CLI keychain entry
	HTTP      *http.Client
	Cookies   CookieSource
	Getenv    func(string) string
	Home      string
	APIKey    func(id string) string // per-provider key from settings
}

func (d Deps) withDefaults() Deps {
	if d.Store == nil {
		d.Store = secrets.NewKeyringStore(secrets.DefaultService)
	}
	if d.ClaudeCLI == nil {
		d.ClaudeCLI = secrets.NewKeyringStore(claudeCLIKeychainService)
	}
	if d.HTTP == nil {
		d.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	if d.Cookies == nil {
		d.Cookies = cookies.NewExtractor()
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	if d.Home == "" {
		if home, err := os.UserHomeDir(); err == nil {
			d.Home = home
		}
	}
	if d.APIKey == nil {
		d.APIKey = func(string) string { return "" }
	}
	return d
}

// cookieSpec names the browser cookie a provider can import at login.
type cookieSpec struct {
	domain string
	name   string
}

// Provider is one monitored backend.
type Provider struct {
	meta      models.ProviderMetadata
	deps      Deps
	loginHint string
	cookie    *cookieSpec

	resolveSecret func(ctx context.Context) (*secrets.Secret, error)
	fetch         func(ctx context.Context, secret *secrets.Secret) (*models.UsageSnapshot, error)
}

// Metadata describes the provider.
func (p *Provider) Metadata() models.ProviderMetadata {
	return p.meta
}

// ID is shorthand for Metadata().ID.
func (p *Provider) ID() string {
	return p.meta.ID
}

// IsAvailable reports whether a credential can be resolved right now. It
// performs no network I/O. A missing credential is (false, nil); only
// infrastructure failures such as an unreachable keyring produce an error.
func (p *Provider) IsAvailable(ctx context.Context) (bool, error) {
	secret, err := p.resolveSecret(ctx)
	if err != nil {
		if IsNotAuthenticated(err) {
			return false, nil
		}
		return false, err
	}
	secret.Zero()
	return true, nil
}

// FetchUsage resolves a credential and queries the backend for a fresh
// snapshot. The resolved secret is zeroized before returning.
func (p *Provider) FetchUsage(ctx context.Context) (*models.UsageSnapshot, error) {
	secret, err := p.resolveSecret(ctx)
	if err != nil {
		return nil, err
	}
	defer secret.Zero()
	return p.fetch(ctx, secret)
}

// ReloadToken re-scans the credential sources and reports whether one is
// present now. Used after the user logs in through an external tool.
func (p *Provider) ReloadToken(ctx context.Context) bool {
	secret, err := p.resolveSecret(ctx)
	if err != nil {
		return false
	}
	secret.Zero()
	return true
}

// Login acquires a credential using the variant's preferred auth method and
// returns a short status message for the UI.
func (p *Provider) Login(ctx context.Context) (string, error) {
	method := models.AuthNone
	if len(p.meta.AuthMethods) > 0 {
		method = p.meta.AuthMethods[0]
	}

	switch method {
	case models.AuthOAuth, models.AuthCli:
		if p.ReloadToken(ctx) {
			return "existing credential detected", nil
		}
		if p.loginHint != "" {
			return p.loginHint, nil
		}
		return "sign in with the provider CLI, then refresh", nil

	case models.AuthCookie:
		if p.cookie == nil {
			return "", NewError(KindUnsupported, p.meta.ID, "no cookie source configured")
		}
		secret, err := p.deps.Cookies.ExtractAny(p.cookie.domain, p.cookie.name)
		if err != nil {
			return "", NewError(KindNotAuthenticated, p.meta.ID, "no browser session found: "+err.Error())
		}
		defer secret.Zero()
		if err := p.deps.Store.Put(p.meta.ID, secret); err != nil {
			return "", err
		}
		return "imported browser session cookie", nil

	case models.AuthAPIToken:
		if p.loginHint != "" {
			return p.loginHint, nil
		}
		return "add an API key in settings", nil

	default:
		return "", NewError(KindUnsupported, p.meta.ID, "login is not supported")
	}
}

// Logout removes the credential from our own store. Credentials owned by
// external tools (CLI files, keychains, env vars) are left alone. Deleting
// a credential that does not exist is not an error.
func (p *Provider) Logout(_ context.Context) error {
	return p.deps.Store.Delete(p.meta.ID)
}

// httpGet performs a GET with the given headers and returns the status code
// and body. Transport errors are classified as network failures.
func (p *Provider) httpGet(ctx context.Context, url string, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, NewError(KindNetworkFailure, p.meta.ID, "failed to create request: "+err.Error())
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := p.deps.HTTP.Do(req)
	if err != nil {
		return 0, nil, NewError(KindNetworkFailure, p.meta.ID, "request failed: "+err.Error())
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "provider", p.meta.ID, "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, NewError(KindNetworkFailure, p.meta.ID, "failed to read response: "+err.Error())
	}
	return resp.StatusCode, body, nil
}

// Registry holds the provider set in display order.
type Registry struct {
	order []string
	byID  map[string]*Provider
}

// NewRegistry builds the full provider set: claude, openai, gemini, codex.
func NewRegistry(deps Deps) *Registry {
	deps = deps.withDefaults()
	all := []*Provider{
		newClaude(deps),
		newOpenAI(deps),
		newGemini(deps),
		newCodex(deps),
	}

	r := &Registry{byID: make(map[string]*Provider, len(all))}
	for _, p := range all {
		r.order = append(r.order, p.ID())
		r.byID[p.ID()] = p
	}
	return r
}

// Get returns the provider with the given id.
func (r *Registry) Get(id string) (*Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// IDs returns the provider ids in display order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Metadata lists every provider's metadata in display order.
func (r *Registry) Metadata() []models.ProviderMetadata {
	out := make([]models.ProviderMetadata, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].Metadata())
	}
	return out
}
