package main

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"posdash/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short", DashboardPassword: "a-long-enough-password"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", DashboardPassword: ""},
		{AuthSecret: "0123456789abcdef0123456789abcdef", DashboardPassword: "short"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", DashboardPassword: "Password123"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", DashboardPassword: "zzzzzzzzzzzz"},
	}
	for i, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("case %d: expected weak security config to be rejected", i)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:        "0123456789abcdef0123456789abcdef",
		DashboardPassword: "ice-counter-7391",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigAcceptsBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("x"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	err = validateSecurityConfig(config.Config{
		AuthSecret:        "0123456789abcdef0123456789abcdef",
		DashboardPassword: string(hash),
	})
	if err != nil {
		t.Fatalf("expected bcrypt hash to be accepted, got %v", err)
	}
}
