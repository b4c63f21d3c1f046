package filedata

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/spf13/afero"
)

// Image type codes.
const (
	TypeJPG = 1
	TypeGIF = 2
	TypePNG = 3
)

const (
	// dirPermissions is the permission mode for the filedata directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for stored blobs.
	filePermissions = 0600
)

// Extension returns the file extension for an image type code.
// Unknown codes map to "bin".
func Extension(typeCode int) string {
	switch typeCode {
	case TypeJPG:
		return "jpg"
	case TypeGIF:
		return "gif"
	case TypePNG:
		return "png"
	default:
		return "bin"
	}
}

// Filename returns the blob file name for id and typeCode.
func Filename(id int64, typeCode int) string {
	return strconv.FormatInt(id, 10) + "." + Extension(typeCode)
}

// Store persists image payloads keyed by point value id.
//
// Thread Safety:
//   - Safe for concurrent use; each id maps to its own file.
type Store struct {
	fs afero.Fs
}

// New creates a Store on fs. Paths are relative to the root of fs.
func New(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// Open creates a Store rooted at dir on the OS filesystem, creating the
// directory if needed.
//
// Parameters:
//   - dir: Directory that holds the blobs
//
// Returns:
//   - *Store: Store rooted at dir
//   - error: If the directory cannot be created
func Open(dir string) (*Store, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating filedata directory: %w", err)
	}
	return New(afero.NewBasePathFs(osFs, dir)), nil
}

// Save writes data for id. An existing blob is never overwritten.
//
// Returns:
//   - error: ErrBlobAlreadyExists if the id is taken, or an I/O error
func (s *Store) Save(id int64, typeCode int, data []byte) error {
	name := Filename(id, typeCode)

	f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrBlobAlreadyExists, name)
		}
		return fmt.Errorf("creating blob %s: %w", name, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()         //nolint:errcheck // Already failing
		s.fs.Remove(name) //nolint:errcheck // Best effort cleanup of partial write
		return fmt.Errorf("writing blob %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(name) //nolint:errcheck // Best effort cleanup of partial write
		return fmt.Errorf("closing blob %s: %w", name, err)
	}
	return nil
}

// Load reads the blob for id.
//
// Returns:
//   - []byte: The stored payload
//   - error: ErrBlobNotFound if absent, or an I/O error
func (s *Store) Load(id int64, typeCode int) ([]byte, error) {
	name := Filename(id, typeCode)

	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, name)
		}
		return nil, fmt.Errorf("opening blob %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", name, err)
	}
	return data, nil
}

// Delete removes the blob for id. A missing blob is not an error.
func (s *Store) Delete(id int64, typeCode int) error {
	name := Filename(id, typeCode)
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing blob %s: %w", name, err)
	}
	return nil
}
