package recipe

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

func writeDescriptor(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "core.yaml", `
name: core
product:
  name: clip
  version: 5.0.0
  properties:
    COMMON_NAME: CLIP OS
    SHORT_NAME: clipos
sdk: clip/sdk
instrumentation: development
prelude_commands:
  - source /mnt/toolkit/env
env:
  FEATURES: "-sandbox"
`)

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.Identifier() != "clip/core" {
		t.Errorf("Identifier() = %q, want %q", r.Identifier(), "clip/core")
	}
	if r.InstrumentationLevel != Development {
		t.Errorf("InstrumentationLevel = %v, want Development", r.InstrumentationLevel)
	}
	if r.Cwd != "/" {
		t.Errorf("Cwd = %q, want the %q default", r.Cwd, "/")
	}
	if keys := r.Product.Properties.Keys(); len(keys) != 2 || keys[0] != "COMMON_NAME" {
		t.Errorf("property keys = %v, want descriptor order preserved", keys)
	}
	if len(r.PreludeCommands) != 1 {
		t.Errorf("PreludeCommands = %v, want one entry", r.PreludeCommands)
	}
	if r.Env["FEATURES"] != "-sandbox" {
		t.Errorf("Env = %v, want FEATURES entry", r.Env)
	}
}

func TestLoadIncludePrecedence(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "base.yaml", `
cwd: /mnt
prelude_commands:
  - source /mnt/toolkit/env
capabilities:
  - CAP_SYS_ADMIN
`)
	path := writeDescriptor(t, dir, "core.yaml", `
include:
  - base.yaml
name: core
product:
  name: clip
  version: 5.0.0
cwd: /mnt/products
`)

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.Cwd != "/mnt/products" {
		t.Errorf("Cwd = %q, the including descriptor must take precedence", r.Cwd)
	}
	if len(r.PreludeCommands) != 1 {
		t.Errorf("PreludeCommands = %v, want the included entry", r.PreludeCommands)
	}
	if len(r.Capabilities) != 1 || r.Capabilities[0] != "CAP_SYS_ADMIN" {
		t.Errorf("Capabilities = %v, want the included entry", r.Capabilities)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeDescriptor(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	var verr *errdefs.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Load() error = %v, want ValidationError", err)
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("Load() error = %v, want it to name the include cycle", err)
	}
}

func TestLoadMissingDescriptor(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() accepted a missing descriptor")
	}
}

func TestLoadDuplicatePropertyKey(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "core.yaml", `
name: core
product:
  name: clip
  version: 5.0.0
  properties:
    SHORT_NAME: one
    SHORT_NAME: two
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() accepted a duplicated property key")
	}
}

func TestLoadUnknownInstrumentationLevel(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "core.yaml", `
name: core
product:
  name: clip
  version: 5.0.0
instrumentation: extreme
`)

	_, err := Load(path)
	var verr *errdefs.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Load() error = %v, want ValidationError", err)
	}
}
