package recipe

import (
	"errors"
	"testing"

	"github.com/cuemby/burrow/pkg/errdefs"
)

func TestParseInstrumentationLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    InstrumentationLevel
		wantErr bool
	}{
		{in: "", want: Production},
		{in: "production", want: Production},
		{in: "development", want: Development},
		{in: "Debug", want: Debug},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseInstrumentationLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseInstrumentationLevel(%q) accepted an unknown level", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseInstrumentationLevel(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInstrumentationLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTaintedVersion(t *testing.T) {
	tests := []struct {
		version      string
		instrumented bool
		want         string
	}{
		{version: "5.0.0", instrumented: false, want: "5.0.0"},
		{version: "5.0.0", instrumented: true, want: "5.0.0+instrumented"},
		{version: "5.0.0+build.7", instrumented: true, want: "5.0.0+build.7.instrumented"},
	}
	for _, tt := range tests {
		p := &Product{Name: "clip", Version: tt.version}
		got, err := p.TaintedVersion(tt.instrumented)
		if err != nil {
			t.Errorf("TaintedVersion(%v) error = %v", tt.instrumented, err)
			continue
		}
		if got != tt.want {
			t.Errorf("TaintedVersion(%v) on %q = %q, want %q",
				tt.instrumented, tt.version, got, tt.want)
		}
	}
}

func TestProductValidation(t *testing.T) {
	tests := []struct {
		name    string
		product Product
	}{
		{
			name:    "name with dash",
			product: Product{Name: "my-product", Version: "1.0.0"},
		},
		{
			name:    "version not semver",
			product: Product{Name: "clip", Version: "1.0"},
		},
		{
			name: "property key not an env var name",
			product: Product{
				Name: "clip", Version: "1.0.0",
				Properties: Properties{{Key: "9bad", Value: "x"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.product.validate()
			var verr *errdefs.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("validate() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestIdentifier(t *testing.T) {
	r := &Recipe{Name: "core", Product: Product{Name: "clip"}}
	if got := r.Identifier(); got != "clip/core" {
		t.Errorf("Identifier() = %q, want %q", got, "clip/core")
	}
}

func TestPropertiesGetAndKeys(t *testing.T) {
	props := Properties{
		{Key: "COMMON_NAME", Value: "CLIP OS"},
		{Key: "SHORT_NAME", Value: "clipos"},
	}
	if v, ok := props.Get("SHORT_NAME"); !ok || v != "clipos" {
		t.Errorf("Get(SHORT_NAME) = %q, %v", v, ok)
	}
	if _, ok := props.Get("MISSING"); ok {
		t.Error("Get(MISSING) reported a value")
	}
	keys := props.Keys()
	if len(keys) != 2 || keys[0] != "COMMON_NAME" || keys[1] != "SHORT_NAME" {
		t.Errorf("Keys() = %v, want descriptor order preserved", keys)
	}
}
