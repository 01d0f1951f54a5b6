package providers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func openaiBillingTransport(t *testing.T) *MockRoundTripper {
	t.Helper()
	return &MockRoundTripper{
		RoundTripFunc: func(req *http.Request) (*http.Response, error) {
			switch req.URL.Path {
			case "/v1/dashboard/billing/subscription":
				return jsonResponse(200, `{"hard_limit_usd": 120, "plan": {"title": "Pay-as-you-go"}}`), nil
			case "/v1/dashboard/billing/usage":
				if req.URL.Query().Get("start_date") == "" || req.URL.Query().Get("end_date") == "" {
					t.Error("usage request missing date range")
				}
				return jsonResponse(200, `{"total_usage": 4250}`), nil
			default:
				t.Errorf("unexpected path %q", req.URL.Path)
				return jsonResponse(404, `{}`), nil
			}
		},
	}
}

func TestOpenAI_NoCredential(t *testing.T) {
	deps := baseDeps(t)

	p := newOpenAI(deps)
	ok, err := p.IsAvailable(context.Background())
	if err != nil {
		t.Fatalf("IsAvailable() error = %v", err)
	}
	if ok {
		t.Error("IsAvailable() = true with no credential")
	}

	snapshot, err := p.FetchUsage(context.Background())
	if !IsNotAuthenticated(err) {
		t.Fatalf("FetchUsage() error = %v, want not-authenticated", err)
	}
	if snapshot != nil {
		t.Error("FetchUsage() returned snapshot alongside error")
	}
}

func TestOpenAI_FetchUsage_Success(t *testing.T) {
	deps := baseDeps(t)
	deps.Getenv = envMap(map[string]string{"OPENAI_API_KEY": "sk-test-openai-key"})
	deps.HTTP = &http.Client{Transport: openaiBillingTransport(t)}

	p := newOpenAI(deps)
	snapshot, err := p.FetchUsage(context.Background())
	if err != nil {
		t.Fatalf("FetchUsage() error = %v", err)
	}

	if snapshot.Primary == nil {
		t.Fatal("Primary window missing")
	}
	if snapshot.Primary.ResetDescription != "$42.50 / $120.00" {
		t.Errorf("ResetDescription = %q, want %q", snapshot.Primary.ResetDescription, "$42.50 / $120.00")
	}
	// 42.50 of 120.00 is 35.41%.
	if got := snapshot.Primary.UsedPercent; got < 35.41 || got > 35.42 {
		t.Errorf("UsedPercent = %v, want ~35.41", got)
	}
	if snapshot.Primary.ResetsAt == nil {
		t.Fatal("ResetsAt missing")
	}
	if snapshot.Primary.ResetsAt.Day() != 1 {
		t.Errorf("ResetsAt = %v, want first of next month", snapshot.Primary.ResetsAt)
	}
	if snapshot.Identity == nil || snapshot.Identity.Plan != "Pay-as-you-go" {
		t.Errorf("Identity = %+v, want plan title", snapshot.Identity)
	}
}

func TestOpenAI_FetchUsage_PercentCapped(t *testing.T) {
	deps := baseDeps(t)
	deps.Getenv = envMap(map[string]string{"OPENAI_API_KEY": "sk-test-openai-key"})
	deps.HTTP = &http.Client{Transport: &MockRoundTripper{
		RoundTripFunc: func(req *http.Request) (*http.Response, error) {
			switch req.URL.Path {
			case "/v1/dashboard/billing/subscription":
				return jsonResponse(200, `{"hard_limit_usd": 10}`), nil
			default:
				return jsonResponse(200, `{"total_usage": 250000}`), nil
			}
		},
	}}

	p := newOpenAI(deps)
	snapshot, err := p.FetchUsage(context.Background())
	if err != nil {
		t.Fatalf("FetchUsage() error = %v", err)
	}
	if snapshot.Primary.UsedPercent != 100 {
		t.Errorf("UsedPercent = %v, want capped at 100", snapshot.Primary.UsedPercent)
	}
}

func TestOpenAI_FetchUsage_ZeroLimit(t *testing.T) {
	deps := baseDeps(t)
	deps.Getenv = envMap(map[string]string{"OPENAI_API_KEY": "sk-test-openai-key"})
	deps.HTTP = &http.Client{Transport: &MockRoundTripper{
		RoundTripFunc: func(req *http.Request) (*http.Response, error) {
			switch req.URL.Path {
			case "/v1/dashboard/billing/subscription":
				return jsonResponse(200, `{"hard_limit_usd": 0}`), nil
			default:
				return jsonResponse(200, `{"total_usage": 4250}`), nil
			}
		},
	}}

	p := newOpenAI(deps)
	snapshot, err := p.FetchUsage(context.Background())
	if err != nil {
		t.Fatalf("FetchUsage() error = %v", err)
	}
	if snapshot.Primary.UsedPercent != 0 {
		t.Errorf("UsedPercent = %v, want 0 with no hard limit", snapshot.Primary.UsedPercent)
	}
	if snapshot.Primary.ResetDescription != "$42.50 / $0.00" {
		t.Errorf("ResetDescription = %q, want %q", snapshot.Primary.ResetDescription, "$42.50 / $0.00")
	}
}

func TestOpenAI_FetchUsage_KeyRejected(t *testing.T) {
	deps := baseDeps(t)
	deps.Getenv = envMap(map[string]string{"OPENAI_API_KEY": "sk-expired-key"})
	deps.HTTP = &http.Client{Transport: &MockRoundTripper{
		RoundTripFunc: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(401, `{"error": {"message": "invalid key"}}`), nil
		},
	}}

	p := newOpenAI(deps)
	if _, err := p.FetchUsage(context.Background()); !IsNotAuthenticated(err) {
		t.Errorf("FetchUsage() error = %v, want not-authenticated", err)
	}
}

func TestOpenAI_ResolveFileCredential(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "KeyValueLine",
			content: "# credentials\nOPENAI_API_KEY=\"sk-file-key\"\n",
			want:    "sk-file-key",
		},
		{
			name:    "BareKey",
			content: "sk-bare-file-key\n",
			want:    "sk-bare-file-key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := baseDeps(t)
			dir := filepath.Join(deps.Home, ".openai")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				t.Fatalf("failed to create dir: %v", err)
			}
			if err := os.WriteFile(filepath.Join(dir, "credentials"), []byte(tt.content), 0o600); err != nil {
				t.Fatalf("failed to write credentials: %v", err)
			}

			p := newOpenAI(deps)
			secret, err := p.resolveSecret(context.Background())
			if err != nil {
				t.Fatalf("resolveSecret() error = %v", err)
			}
			defer secret.Zero()
			if got := secretValue(t, secret); got != tt.want {
				t.Errorf("resolved secret = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenAI_ResolvePriority_EnvBeatsFile(t *testing.T) {
	deps := baseDeps(t)
	deps.Getenv = envMap(map[string]string{"OPENAI_API_KEY": "sk-env-key"})
	dir := filepath.Join(deps.Home, ".openai")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "credentials"), []byte("sk-file-key\n"), 0o600); err != nil {
		t.Fatalf("failed to write credentials: %v", err)
	}

	p := newOpenAI(deps)
	secret, err := p.resolveSecret(context.Background())
	if err != nil {
		t.Fatalf("resolveSecret() error = %v", err)
	}
	defer secret.Zero()
	if got := secretValue(t, secret); got != "sk-env-key" {
		t.Errorf("resolved secret = %q, want env key", got)
	}
}
