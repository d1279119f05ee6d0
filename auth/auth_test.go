package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestParseChallengeBearer(t *testing.T) {
	c, err := ParseChallenge(`Bearer realm="https://auth.example.com/token",service="registry.example.com",scope="repository:ns/app:pull"`)
	if err != nil {
		t.Fatal(err)
	}
	if c.Scheme != "Bearer" || c.Realm != "https://auth.example.com/token" || c.Service != "registry.example.com" || c.Scope != "repository:ns/app:pull" {
		t.Fatalf("unexpected challenge: %+v", c)
	}
}

func TestParseChallengeBasic(t *testing.T) {
	c, err := ParseChallenge(`Basic realm="registry.example.com"`)
	if err != nil {
		t.Fatal(err)
	}
	if c.Scheme != "Basic" || c.Realm != "registry.example.com" {
		t.Fatalf("unexpected challenge: %+v", c)
	}
}

func TestParseChallengeRejectsUnknownScheme(t *testing.T) {
	if _, err := ParseChallenge(`Digest realm="x"`); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestStoreResolvesFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	auth := base64.StdEncoding.EncodeToString([]byte("alice:s3cr3t"))
	cfg := map[string]interface{}{
		"auths": map[string]interface{}{
			"registry.example.com": map[string]string{"auth": auth},
		},
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(configPath)
	if err != nil {
		t.Fatal(err)
	}
	cred, err := store.Get("registry.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if cred.Username != "alice" || cred.Password != "s3cr3t" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
}

func TestStoreOverrideTakesPriority(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	store.SetCredential("registry.example.com", Credential{Username: "override", Password: "pw"})
	cred, err := store.Get("registry.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if cred.Username != "override" {
		t.Fatalf("expected override credential, got %+v", cred)
	}
}

func TestStoreNormalizesLocalhostAliases(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	store.SetCredential("localhost", Credential{Username: "u", Password: "p"})
	cred, err := store.Get("127.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if cred.Username != "u" {
		t.Fatalf("expected localhost alias to resolve, got %+v", cred)
	}
}

func TestBasicBackendAuthorize(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	store.SetCredential("registry.example.com", Credential{Username: "u", Password: "p"})
	backend := NewBasicBackend(store, "registry.example.com")
	header, err := backend.Authorize(AuthorizeContext{Host: "registry.example.com"})
	if err != nil {
		t.Fatal(err)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("u:p"))
	if header != want {
		t.Fatalf("got %q, want %q", header, want)
	}
}

func TestTokenBackendAnonymousExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"token": "anon-token", "expires_in": 300})
	}))
	defer srv.Close()

	store, err := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	backend := NewTokenBackend(store, srv.Client())
	header, err := backend.Authorize(AuthorizeContext{
		Host:      "registry.example.com",
		Challenge: Challenge{Scheme: "Bearer", Realm: srv.URL, Service: "registry.example.com", Scope: "repository:ns/app:pull"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if header != "Bearer anon-token" {
		t.Fatalf("got %q", header)
	}
}

func TestTokenBackendFallsBackToBasicOnUnauthorized(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"token": "exchanged-token", "expires_in": 300})
	}))
	defer srv.Close()

	store, err := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	store.SetCredential("registry.example.com", Credential{Username: "u", Password: "p"})
	backend := NewTokenBackend(store, srv.Client())
	header, err := backend.Authorize(AuthorizeContext{
		Host:      "registry.example.com",
		Challenge: Challenge{Scheme: "Bearer", Realm: srv.URL},
	})
	if err != nil {
		t.Fatal(err)
	}
	if header != "Bearer exchanged-token" {
		t.Fatalf("got %q", header)
	}
	if gotAuth == "" {
		t.Fatal("expected second request to carry Basic auth")
	}
}

func TestStoreFallsBackToAnonymousOnMissingCredentialHelper(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	cfg := map[string]interface{}{
		"credsStore": "does-not-exist-anywhere",
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(configPath)
	if err != nil {
		t.Fatal(err)
	}
	cred, err := store.Get("registry.example.com")
	if err != nil {
		t.Fatalf("expected a missing credential helper to fall back to anonymous access, got error: %v", err)
	}
	if !cred.Empty() {
		t.Fatalf("expected empty credential, got %+v", cred)
	}
}

func TestIsECRHost(t *testing.T) {
	if !IsECRHost("123456789012.dkr.ecr.us-east-1.amazonaws.com") {
		t.Fatal("expected ECR host to match")
	}
	if IsECRHost("registry.example.com") {
		t.Fatal("expected non-ECR host to not match")
	}
}
