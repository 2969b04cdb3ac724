package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("COZE_BASE_URL", "")
	t.Setenv("PROVIDER_PROXY_URL", "")
	t.Setenv("HTTPS_PROXY", "")
	t.Setenv("HTTP_PROXY", "")
	t.Setenv("MAX_UPLOAD_BYTES", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.CozeBaseURL != "https://api.coze.cn" {
		t.Fatalf("CozeBaseURL = %q", cfg.CozeBaseURL)
	}
	if cfg.ProviderProxyURL != nil {
		t.Fatalf("ProviderProxyURL = %v, want nil", cfg.ProviderProxyURL)
	}
	if cfg.MaxUploadBytes != 10*1024*1024 {
		t.Fatalf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.ProviderTimeout != 90*time.Second {
		t.Fatalf("ProviderTimeout = %s", cfg.ProviderTimeout)
	}
	if cfg.DatabaseEnabled() {
		t.Fatalf("database should be disabled without DATABASE_URL")
	}
}

func TestLoadConfigProxyPrecedence(t *testing.T) {
	t.Setenv("PROVIDER_PROXY_URL", "")
	t.Setenv("HTTPS_PROXY", "http://secure-proxy.internal:3128")
	t.Setenv("HTTP_PROXY", "http://plain-proxy.internal:3128")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ProviderProxyURL == nil || cfg.ProviderProxyURL.Host != "secure-proxy.internal:3128" {
		t.Fatalf("ProviderProxyURL = %v, want HTTPS_PROXY", cfg.ProviderProxyURL)
	}

	t.Setenv("PROVIDER_PROXY_URL", "http://explicit.internal:8080")
	cfg, err = LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ProviderProxyURL.Host != "explicit.internal:8080" {
		t.Fatalf("ProviderProxyURL = %v, want PROVIDER_PROXY_URL", cfg.ProviderProxyURL)
	}
}

func TestLoadConfigRejectsBadProxy(t *testing.T) {
	t.Setenv("PROVIDER_PROXY_URL", "::not a url")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for invalid proxy url")
	}
}

func TestLoadConfigSplitsOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://imageprompt.org , ,https://www.imageprompt.org")
	t.Setenv("PROVIDER_PROXY_URL", "")
	t.Setenv("HTTPS_PROXY", "")
	t.Setenv("HTTP_PROXY", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := []string{"https://imageprompt.org", "https://www.imageprompt.org"}
	if len(cfg.CORSAllowedOrigins) != len(expected) {
		t.Fatalf("CORSAllowedOrigins = %#v", cfg.CORSAllowedOrigins)
	}
	for i, origin := range expected {
		if cfg.CORSAllowedOrigins[i] != origin {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], origin)
		}
	}
}

func TestEnvCredentialsReadAtCallTime(t *testing.T) {
	creds := EnvCredentials{}
	t.Setenv("COZE_API_TOKEN", "first")
	t.Setenv("COZE_WORKFLOW_ID", "wf-1")
	if creds.Token() != "first" || creds.WorkflowID() != "wf-1" {
		t.Fatalf("unexpected credentials: %q %q", creds.Token(), creds.WorkflowID())
	}
	t.Setenv("COZE_API_TOKEN", "rotated")
	if creds.Token() != "rotated" {
		t.Fatalf("Token() = %q, want rotated value", creds.Token())
	}
	t.Setenv("COZE_API_TOKEN", "")
	if creds.Token() != "" {
		t.Fatalf("Token() = %q, want empty", creds.Token())
	}
}

func TestLoadConfigTrustProxyHeaders(t *testing.T) {
	t.Setenv("PROVIDER_PROXY_URL", "")
	t.Setenv("HTTPS_PROXY", "")
	t.Setenv("HTTP_PROXY", "")

	t.Setenv("TRUST_PROXY_HEADERS", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TrustProxyHeaders {
		t.Fatalf("proxy headers must not be trusted by default")
	}

	t.Setenv("TRUST_PROXY_HEADERS", "true")
	cfg, err = LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !cfg.TrustProxyHeaders {
		t.Fatalf("TRUST_PROXY_HEADERS=true should enable proxy headers")
	}
}
