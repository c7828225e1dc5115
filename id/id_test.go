package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/entitle/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"TransactionID", id.NewTransactionID, "ptx_"},
		{"SubscriptionID", id.NewSubscriptionID, "sub_"},
		{"BackupID", id.NewBackupID, "bkp_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseSubscriptionID(id.NewBackupID().String()); err == nil {
		t.Error("ParseSubscriptionID accepted a bkp_ id")
	}
	if _, err := id.ParseBackupID(id.NewTransactionID().String()); err == nil {
		t.Error("ParseBackupID accepted a ptx_ id")
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := id.NewSubscriptionID()
	parsed, err := id.ParseSubscriptionID(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewBackupID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if unmarshalErr := restored.UnmarshalText(data); unmarshalErr != nil {
		t.Fatalf("UnmarshalText failed: %v", unmarshalErr)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	var nilID id.ID
	data, err = nilID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText(nil) failed: %v", err)
	}
	var restored2 id.ID
	if err := restored2.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !restored2.IsNil() {
		t.Error("expected nil after round-trip of nil ID")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewTransactionID()
	b := id.NewTransactionID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewTransactionID() calls returned the same ID: %q", a.String())
	}
}
