package shader

import (
	"errors"
	"strings"
	"testing"
)

func TestSourcesNotEmpty(t *testing.T) {
	for _, name := range Names() {
		src, err := Source(name)
		if err != nil {
			t.Fatalf("Source(%q): %v", name, err)
		}
		if strings.TrimSpace(src) == "" {
			t.Errorf("%s shader source is empty", name)
		}
	}
}

func TestSourceElements(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{Pack, []string{"@compute", "fn " + PackEntry, "@workgroup_size(8, 8, 1)", "var<storage, read> pixels", "out_tensor", "params.planar"}},
		{Decode, []string{"@compute", "fn " + DecodeEntry, "@workgroup_size(8, 8, 1)", "var<storage, read> values", "params.flip_x", "params.flip_y", "255u << 24u"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Source(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			for _, p := range tt.parts {
				if !strings.Contains(src, p) {
					t.Errorf("%s shader missing %q", tt.name, p)
				}
			}
		})
	}
}

func TestUnknownShader(t *testing.T) {
	if _, err := Source("nope"); !errors.Is(err, ErrUnknownShader) {
		t.Errorf("Source: err = %v, want ErrUnknownShader", err)
	}
	if _, err := Compile("nope"); !errors.Is(err, ErrUnknownShader) {
		t.Errorf("Compile: err = %v, want ErrUnknownShader", err)
	}
}

func TestCompile(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			code, err := Compile(name)
			if err != nil {
				msg := err.Error()
				if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
					t.Skipf("Skipping: naga feature not yet implemented: %v", err)
				}
				t.Fatalf("Compile(%q): %v", name, err)
			}
			if len(code) == 0 {
				t.Fatal("SPIR-V output is empty")
			}
			if code[0] != 0x07230203 {
				t.Errorf("invalid SPIR-V magic: 0x%08X, want 0x07230203", code[0])
			}
		})
	}
}

func TestWords(t *testing.T) {
	got := Words([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00, 0xff})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0] != 0x07230203 || got[1] != 1 {
		t.Errorf("Words = %#x", got)
	}
}
