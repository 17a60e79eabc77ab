package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuemby/burrow/pkg/errdefs"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func writeImageFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rootfs.squashfs")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRecordAndGet(t *testing.T) {
	c := openTestCatalog(t)
	path := writeImageFile(t, "not really a squashfs")

	recorded, err := c.Record(Image{
		Name:    "clip-core.build",
		Path:    path,
		Product: "clip",
		Recipe:  "core",
		Action:  "build",
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !strings.HasPrefix(recorded.Digest, "sha256:") {
		t.Errorf("Record() digest = %q, want a sha256 digest", recorded.Digest)
	}
	if recorded.Size != int64(len("not really a squashfs")) {
		t.Errorf("Record() size = %d, want %d", recorded.Size, len("not really a squashfs"))
	}
	if recorded.CreatedAt.IsZero() {
		t.Error("Record() left CreatedAt unset")
	}

	got, err := c.Get("clip-core.build")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Digest != recorded.Digest || got.Path != recorded.Path {
		t.Errorf("Get() = %+v, want %+v", got, recorded)
	}
}

func TestRecordReplacesExisting(t *testing.T) {
	c := openTestCatalog(t)
	path := writeImageFile(t, "first")

	first, err := c.Record(Image{Name: "sdk", Path: path})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("second, longer contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	second, err := c.Record(Image{Name: "sdk", Path: path})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if second.Digest == first.Digest {
		t.Error("Record() did not re-digest the replaced image")
	}

	images, err := c.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("List() returned %d records, want 1", len(images))
	}
	if images[0].Digest != second.Digest {
		t.Error("List() returned the stale record")
	}
}

func TestRecordValidation(t *testing.T) {
	c := openTestCatalog(t)

	var verr *errdefs.ValidationError
	if _, err := c.Record(Image{Path: "/some/image.squashfs"}); !errors.As(err, &verr) {
		t.Errorf("Record() without a name returned %v, want a ValidationError", err)
	}
	if _, err := c.Record(Image{Name: "x", Path: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("Record() with a missing image file succeeded")
	}
}

func TestGetNotFound(t *testing.T) {
	c := openTestCatalog(t)
	if _, err := c.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() on an empty catalog returned %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	c := openTestCatalog(t)
	path := writeImageFile(t, "image")

	if _, err := c.Record(Image{Name: "doomed", Path: path}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := c.Delete("doomed"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("Delete() removed the image file, it must only drop the record")
	}
	if err := c.Delete("doomed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() of a missing record returned %v, want ErrNotFound", err)
	}
}

func TestListOrder(t *testing.T) {
	c := openTestCatalog(t)
	path := writeImageFile(t, "image")

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := c.Record(Image{Name: name, Path: path}); err != nil {
			t.Fatalf("Record(%q) error = %v", name, err)
		}
	}
	images, err := c.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var names []string
	for _, img := range images {
		names = append(names, img.Name)
	}
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("List() order = %v, want %v", names, want)
		}
	}
}
