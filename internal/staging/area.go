// Package staging keeps raw scan images on disk between createScan and a
// successful upload, and removes directories nothing references anymore.
//
// Each scan owns <staging_dir>/<scan id>/ holding one <index>-<filename>
// file per photo.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"leaflens/internal/services"
	"leaflens/internal/textutil"
)

// Area is the staging root.
type Area struct {
	root string
}

// New returns an Area rooted at dir.
func New(dir string) *Area {
	return &Area{root: strings.TrimSpace(dir)}
}

// Root returns the staging directory.
func (a *Area) Root() string { return a.root }

// Dir returns the directory holding the scan's raw images.
func (a *Area) Dir(scanID string) string {
	return filepath.Join(a.root, textutil.SanitizeToken(scanID))
}

// FileName returns the staged base name for one photo.
func FileName(index int, filename string) string {
	return strconv.Itoa(index) + "-" + textutil.SanitizeFileName(filename, "image")
}

// Put writes data for the photo at index and returns its path.
func (a *Area) Put(scanID string, index int, filename string, data []byte) (string, error) {
	if a.root == "" {
		return "", services.Wrap(services.ErrConfiguration, "created", "stage image", "paths.staging_dir not set", nil)
	}
	dir := a.Dir(scanID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	target := filepath.Join(dir, FileName(index, filename))
	tmp := target + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write staged image: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return "", fmt.Errorf("commit staged image: %w", err)
	}
	return target, nil
}

// Read returns the staged bytes for the photo at index.
func (a *Area) Read(scanID string, index int, filename string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(a.Dir(scanID), FileName(index, filename)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrNotFound, "uploading", "read staged image",
				fmt.Sprintf("photo %d of scan %s is no longer staged", index, scanID), err)
		}
		return nil, fmt.Errorf("read staged image: %w", err)
	}
	return data, nil
}

// Remove deletes everything staged for the scan.
func (a *Area) Remove(scanID string) error {
	if a.root == "" {
		return nil
	}
	if err := os.RemoveAll(a.Dir(scanID)); err != nil {
		return fmt.Errorf("remove staging dir: %w", err)
	}
	return nil
}
