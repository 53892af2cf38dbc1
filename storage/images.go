package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/civicreport/civic-issue-api/config"
)

// MaxImageSize caps uploaded images at 5 MB
const MaxImageSize = 5 << 20

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// ErrInvalidImage is returned when an upload is missing, too large, or not a
// supported image type
var ErrInvalidImage = errors.New("invalid image upload")

// ImageStore persists uploaded issue photos on the local filesystem. Files
// are written under a single flat directory and addressed by filename.
type ImageStore struct {
	Dir string
}

// NewImageStore creates the upload directory if needed
func NewImageStore(conf *config.Config) (*ImageStore, error) {
	if err := os.MkdirAll(conf.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &ImageStore{Dir: conf.UploadDir}, nil
}

// Save writes the uploaded file to disk under a fresh unique filename and
// returns that filename. The caller owns deleting the file if whatever it
// was stored for fails afterwards.
func (s *ImageStore) Save(file multipart.File, header *multipart.FileHeader) (string, error) {
	if header.Size > MaxImageSize {
		return "", fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidImage, MaxImageSize)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: unsupported file type %q", ErrInvalidImage, ext)
	}

	filename := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(s.Dir, filename))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(file, MaxImageSize)); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return filename, nil
}

// Remove deletes a stored image. A missing file is not an error; deletion is
// best-effort by contract.
func (s *ImageStore) Remove(filename string) error {
	if filename == "" {
		return nil
	}
	err := os.Remove(s.Path(filename))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Path returns the on-disk path for a stored filename. The filename is
// flattened so request input can never escape the upload directory.
func (s *ImageStore) Path(filename string) string {
	return filepath.Join(s.Dir, filepath.Base(filename))
}

// List returns the filenames currently stored
func (s *ImageStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
