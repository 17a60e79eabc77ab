package mount

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/system"
)

func TestNewEntry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		options []string
		wantErr bool
	}{
		{
			name:    "valid",
			target:  "/mnt/rootfs",
			options: []string{"nosuid", "mode=755"},
		},
		{
			name:    "option with comma",
			target:  "/mnt/rootfs",
			options: []string{"nosuid,nodev"},
			wantErr: true,
		},
		{
			name:    "relative target",
			target:  "mnt/rootfs",
			wantErr: true,
		},
		{
			name:    "unnormalized target",
			target:  "/mnt/../mnt/rootfs",
			wantErr: true,
		},
		{
			name:    "trailing slash target",
			target:  "/mnt/rootfs/",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEntry("src", tt.target, "tmpfs", tt.options)
			if tt.wantErr {
				var verr *errdefs.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("NewEntry() error = %v, want ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Errorf("NewEntry() error = %v", err)
			}
		})
	}
}

func TestNewEntry_ValidationBeforeSystemCall(t *testing.T) {
	r := &system.MockRunner{}

	_, err := NewEntry("src", "/mnt/x", "tmpfs", []string{"a,b"})
	if err == nil {
		t.Fatal("NewEntry() expected error")
	}
	if len(r.Calls) != 0 {
		t.Errorf("a validation error must not issue any command, got %d calls", len(r.Calls))
	}
}

func TestEntry_Mount_CommandLine(t *testing.T) {
	r := &system.MockRunner{}
	entry, err := NewEntry("/dev/loop3", "/mnt/rootfs", "squashfs", []string{"ro"})
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}

	if err := entry.Mount(context.Background(), r); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	want := []string{"mount", "-t", "squashfs", "-o", "ro", "/dev/loop3", "/mnt/rootfs"}
	if !reflect.DeepEqual(r.Calls[0], want) {
		t.Errorf("mount argv = %v, want %v", r.Calls[0], want)
	}

	if err := entry.Unmount(context.Background(), r); err != nil {
		t.Fatalf("Unmount() error = %v", err)
	}
	want = []string{"umount", "/mnt/rootfs"}
	if !reflect.DeepEqual(r.Calls[1], want) {
		t.Errorf("umount argv = %v, want %v", r.Calls[1], want)
	}
}

func TestEntry_Mount_NoTypeNoOptions(t *testing.T) {
	r := &system.MockRunner{}
	entry, err := NewEntry("/src", "/dst", "", nil)
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}
	if err := entry.Mount(context.Background(), r); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	want := []string{"mount", "/src", "/dst"}
	if !reflect.DeepEqual(r.Calls[0], want) {
		t.Errorf("mount argv = %v, want %v", r.Calls[0], want)
	}
}

func TestUnescapeField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/dev/loop0", want: "/dev/loop0"},
		{in: `/mnt/with\040space`, want: "/mnt/with space"},
		{in: `/mnt/tab\011here`, want: "/mnt/tab\there"},
		{in: `/mnt/back\134slash`, want: `/mnt/back\slash`},
	}
	for _, tt := range tests {
		if got := unescapeField(tt.in); got != tt.want {
			t.Errorf("unescapeField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
