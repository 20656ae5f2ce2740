package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIssueToken(t *testing.T) {
	t.Setenv("CRM_STUB_JWT_SECRET", "dev-secret")

	out, err := run(t, "--issue-token", "staff-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), &claims, func(*jwt.Token) (any, error) {
		return []byte("dev-secret"), nil
	})
	if err != nil {
		t.Fatalf("Issued token does not verify: %v", err)
	}
	if claims.Subject != "staff-1" {
		t.Errorf("Expected subject staff-1, got %q", claims.Subject)
	}
}

func TestIssueTokenWithoutSecret(t *testing.T) {
	t.Setenv("CRM_STUB_JWT_SECRET", "")

	if _, err := run(t, "--issue-token", "staff-1"); err == nil {
		t.Error("Expected error when no secret is configured")
	}
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("CRM_STUB_DB_DRIVER", "postgres")

	if _, err := run(t); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}
