package asset

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	got, err := Parse("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	if err != nil {
		t.Fatalf("expected valid address, got %v", err)
	}
	if got != "0x5fbdb2315678afecb367f032d93f642f64180aa3" {
		t.Errorf("expected canonical lowercase form, got %s", got)
	}
}

func TestParse_Native(t *testing.T) {
	got, err := Parse(Native)
	if err != nil {
		t.Fatalf("native sentinel should parse, got %v", err)
	}
	if !IsNative(got) {
		t.Error("parsed native sentinel should report IsNative")
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{
		"",
		"0x",
		"5fbdb2315678afecb367f032d93f642f64180aa3",   // missing prefix
		"0x5fbdb2315678afecb367f032d93f642f64180aa",  // 39 chars
		"0x5fbdb2315678afecb367f032d93f642f64180aa3f", // 41 chars
		"0x5fbdb2315678afecb367f032d93f642f64180ag3", // non-hex
	}
	for _, c := range cases {
		if _, err := Parse(c); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("Parse(%q): expected ErrInvalidAddress, got %v", c, err)
		}
	}
}

func TestIsNative_OtherAddress(t *testing.T) {
	if IsNative("0x5fbdb2315678afecb367f032d93f642f64180aa3") {
		t.Error("token address should not be native")
	}
}
