package container

import (
	"errors"
	"strings"
	"testing"

	"github.com/cuemby/burrow/pkg/errdefs"
)

func TestNewSpecValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  Config{Name: "sdk_build-1.0", RootfsImage: "/images/sdk.squashfs"},
		},
		{
			name:    "empty name",
			cfg:     Config{Name: "", RootfsImage: "/images/sdk.squashfs"},
			wantErr: true,
		},
		{
			name:    "name with space",
			cfg:     Config{Name: "sdk build", RootfsImage: "/images/sdk.squashfs"},
			wantErr: true,
		},
		{
			name:    "name with slash",
			cfg:     Config{Name: "sdk/build", RootfsImage: "/images/sdk.squashfs"},
			wantErr: true,
		},
		{
			name:    "missing rootfs image",
			cfg:     Config{Name: "sdk"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := NewSpec(tt.cfg)
			if tt.wantErr {
				var verr *errdefs.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("NewSpec() error = %v, want ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSpec() error = %v", err)
			}
			if spec.Name() != tt.cfg.Name {
				t.Errorf("Name() = %q, want %q", spec.Name(), tt.cfg.Name)
			}
		})
	}
}

func TestNewSpecHostnameDefaultsToName(t *testing.T) {
	spec, err := NewSpec(Config{Name: "sdk", RootfsImage: "/images/sdk.squashfs"})
	if err != nil {
		t.Fatalf("NewSpec() error = %v", err)
	}
	if spec.Hostname() != "sdk" {
		t.Errorf("Hostname() = %q, want %q", spec.Hostname(), "sdk")
	}

	spec, err = NewSpec(Config{Name: "sdk", RootfsImage: "/images/sdk.squashfs", Hostname: "builder"})
	if err != nil {
		t.Fatalf("NewSpec() error = %v", err)
	}
	if spec.Hostname() != "builder" {
		t.Errorf("Hostname() = %q, want %q", spec.Hostname(), "builder")
	}
}

func TestDefaultCapabilitiesExcludeNetwork(t *testing.T) {
	for _, c := range DefaultCapabilities() {
		if strings.HasPrefix(c, "CAP_NET_") {
			t.Errorf("default capabilities must not include %q", c)
		}
	}
}

func TestSpecCapabilitiesSortedAndDeduplicated(t *testing.T) {
	spec, err := NewSpec(Config{Name: "sdk", RootfsImage: "/images/sdk.squashfs"})
	if err != nil {
		t.Fatalf("NewSpec() error = %v", err)
	}
	spec.AddCapabilities("CAP_SYS_ADMIN", "CAP_CHOWN") // CAP_CHOWN already present

	caps := spec.Capabilities()
	if len(caps) != len(DefaultCapabilities())+1 {
		t.Errorf("Capabilities() has %d entries, want %d", len(caps), len(DefaultCapabilities())+1)
	}
	for i := 1; i < len(caps); i++ {
		if caps[i-1] >= caps[i] {
			t.Errorf("Capabilities() not sorted: %q before %q", caps[i-1], caps[i])
		}
	}
}

func TestUnsharedNamespaces(t *testing.T) {
	spec, err := NewSpec(Config{Name: "sdk", RootfsImage: "/images/sdk.squashfs"})
	if err != nil {
		t.Fatalf("NewSpec() error = %v", err)
	}
	if ns := spec.UnsharedNamespaces(); len(ns) != 5 || ns[4] != "network" {
		t.Errorf("UnsharedNamespaces() = %v, want network unshared", ns)
	}

	shared, err := NewSpec(Config{
		Name: "sdk", RootfsImage: "/images/sdk.squashfs", SharedHostNetwork: true,
	})
	if err != nil {
		t.Fatalf("NewSpec() error = %v", err)
	}
	for _, ns := range shared.UnsharedNamespaces() {
		if ns == "network" {
			t.Error("UnsharedNamespaces() unshares network despite SharedHostNetwork")
		}
	}
}

func TestNewMountpointValidation(t *testing.T) {
	if _, err := NewMountpoint("/src", "relative/dest", "", nil); err == nil {
		t.Error("NewMountpoint() accepted a relative destination")
	}
	if _, err := NewMountpoint("/src", "/dest/../d", "", nil); err == nil {
		t.Error("NewMountpoint() accepted an unnormalized destination")
	}
	if _, err := NewMountpoint("tmpfs", "/tmp", "tmpfs", []string{"size=1g,nodev"}); err == nil {
		t.Error("NewMountpoint() accepted an option containing a comma")
	}
	if _, err := NewMountpoint("/src", "/dest", "", []string{"bind"}); err != nil {
		t.Errorf("NewMountpoint() error = %v", err)
	}
}
