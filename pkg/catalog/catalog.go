package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/burrow/pkg/errdefs"
)

var bucketImages = []byte("images")

// ErrNotFound is returned when no image record exists under the requested
// name.
var ErrNotFound = errors.New("image not found")

// Image is one catalog record: a produced squashfs image together with the
// build context it came out of. The digest and size are captured when the
// record is made; the catalog holds no live reference to the file.
type Image struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Digest    string    `json:"digest"`
	Size      int64     `json:"size"`
	Product   string    `json:"product,omitempty"`
	Recipe    string    `json:"recipe,omitempty"`
	Action    string    `json:"action,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Catalog indexes produced squashfs images in a bbolt database. The
// database file is the only thing it locks: the image files themselves and
// the output tree stay unprotected, concurrent invocations targeting the
// same output path must be serialized by the operator.
type Catalog struct {
	db *bolt.DB
}

// Open opens (creating if needed) the catalog database in dataDir.
func Open(dataDir string) (*Catalog, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "catalog.db")

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketImages)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create catalog bucket: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record digests the image file at img.Path, fills in the derived fields
// and stores the record under img.Name, replacing any previous record of
// that name. It returns the completed record.
func (c *Catalog) Record(img Image) (*Image, error) {
	if img.Name == "" {
		return nil, errdefs.Validationf("an image record requires a name")
	}
	path, err := filepath.Abs(img.Path)
	if err != nil {
		return nil, errdefs.Validationf("invalid image path %q: %v", img.Path, err)
	}
	img.Path = path

	digest, size, err := digestFile(path)
	if err != nil {
		return nil, err
	}
	img.Digest = digest
	img.Size = size
	img.CreatedAt = time.Now().UTC()

	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketImages)
		data, err := json.Marshal(&img)
		if err != nil {
			return err
		}
		return b.Put([]byte(img.Name), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store image record: %w", err)
	}
	return &img, nil
}

// Get returns the record stored under name, or ErrNotFound.
func (c *Catalog) Get(name string) (*Image, error) {
	var img Image
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketImages).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return json.Unmarshal(data, &img)
	})
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// List returns every image record, in key order.
func (c *Catalog) List() ([]*Image, error) {
	var images []*Image
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketImages).ForEach(func(k, v []byte) error {
			var img Image
			if err := json.Unmarshal(v, &img); err != nil {
				return err
			}
			images = append(images, &img)
			return nil
		})
	})
	return images, err
}

// Delete removes the record stored under name. Only the record goes: the
// image file itself is left alone.
func (c *Catalog) Delete(name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketImages)
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return b.Delete([]byte(name))
	})
}

// digestFile returns the hex sha256 digest and the size of the file.
func digestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to digest image file: %w", err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), size, nil
}
