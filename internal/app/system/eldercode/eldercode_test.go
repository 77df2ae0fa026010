package eldercode

import (
	"bytes"
	"testing"
)

func TestGenerate_Format(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if !Valid(code) {
			t.Fatalf("Generate() = %q, does not match format", code)
		}
		if code[0] != Prefix {
			t.Errorf("Generate() = %q, want prefix %q", code, string(Prefix))
		}
	}
}

func TestGenerate_Varies(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		seen[code] = true
	}
	// 50 draws from ~15 billion codes; more than one distinct value is certain in practice.
	if len(seen) < 2 {
		t.Errorf("expected distinct codes, got %d", len(seen))
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"E1234-ABCD", true},
		{"E1000-0000", true},
		{"Z9999-Z9Z9", true},
		{"e1234-ABCD", false}, // lowercase prefix
		{"E1234-abcd", false},
		{"E123-ABCD", false},
		{"E12345-ABCD", false},
		{"E1234ABCD", false},
		{"E1234-ABC", false},
		{" E1234-ABCD", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := Valid(tt.code); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  e1234-ab9d\n"); got != "E1234-AB9D" {
		t.Errorf("Normalize() = %q, want %q", got, "E1234-AB9D")
	}
}

func TestQRPNG(t *testing.T) {
	png, err := QRPNG("E1234-ABCD", 128)
	if err != nil {
		t.Fatalf("QRPNG failed: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("expected PNG signature")
	}
}
