package main

import (
	"bytes"
	"strings"
	"testing"

	"amanat.org/internal/escrow"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestIDCommandsDeriveContentIDs(t *testing.T) {
	desc := escrow.Hash{3}
	got, err := run(t, "id", "org", "Water Wells", "--description", desc.String())
	if err != nil {
		t.Fatalf("id org: %v", err)
	}
	org := escrow.OrganizationID("Water Wells", desc)
	if got != org.String() {
		t.Fatalf("id org = %s, want %s", got, org)
	}

	got, err = run(t, "id", "campaign", "Village", "--org", org.String(), "--target", "100", "--timeline", "1700000000")
	if err != nil {
		t.Fatalf("id campaign: %v", err)
	}
	if want := escrow.CampaignID("Village", escrow.Hash{}, 100, 1700000000, org).String(); got != want {
		t.Fatalf("id campaign = %s, want %s", got, want)
	}
}

func TestIDCampaignRequiresOrganization(t *testing.T) {
	if _, err := run(t, "id", "campaign", "Village", "--org", "bogus"); err == nil {
		t.Fatal("expected error for malformed organization id")
	}
}
