package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/teemow/dayplanner/internal/config"
	"github.com/teemow/dayplanner/internal/credential"
)

func TestRunAuth_RequiresClient(t *testing.T) {
	m := credential.NewManager(credential.NewMemoryStore(), nil)
	err := runAuth(context.Background(), strings.NewReader("code\n"), &bytes.Buffer{}, config.Default(), m, "")
	if err == nil || !strings.Contains(err.Error(), "GOOGLE_CLIENT_ID") {
		t.Errorf("expected missing client error, got %v", err)
	}
}

func TestRunAuth_EmptyCode(t *testing.T) {
	cfg := config.Default()
	cfg.Credential.ClientID = "id"
	cfg.Credential.ClientSecret = "secret"
	m := credential.NewManager(credential.NewMemoryStore(), nil)

	var out bytes.Buffer
	err := runAuth(context.Background(), strings.NewReader("\n"), &out, cfg, m, "")
	if err == nil || !strings.Contains(err.Error(), "no authorization code") {
		t.Errorf("expected empty code error, got %v", err)
	}
	if !strings.Contains(out.String(), "https://accounts.google.com/") || !strings.Contains(out.String(), "access_type=offline") {
		t.Errorf("expected consent URL, got %q", out.String())
	}
}

func TestPrintStatus(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, credential.Status{Account: "default"})
	if !strings.Contains(out.String(), "none, run \"dayplanner auth\"") {
		t.Errorf("unexpected output %q", out.String())
	}

	out.Reset()
	printStatus(&out, credential.Status{
		Account:       "default",
		HasCredential: true,
		Valid:         true,
		Expiry:        time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		ExpiresIn:     45 * time.Minute,
		Scopes:        []string{"calendar", "tasks"},
	})
	for _, want := range []string{"Valid:       true", "2025-03-10T12:00:00Z", "(in 45m0s)", "calendar, tasks"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output is missing %q:\n%s", want, out.String())
		}
	}
}
