// Package filestore keeps uploaded submission files on the local disk.
package filestore

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
)

var (
	ErrFileTooLarge = errors.New("File too large")

	unsafeChars = regexp.MustCompile(`[^\w.-]`)
)

// Disk stores files under a single directory, served back under urlPrefix.
type Disk struct {
	dir       string
	urlPrefix string
	maxSize   int64
	now       func() time.Time
}

// NewDisk creates the upload directory if needed. A relative dir is resolved from the project root.
func NewDisk(conf core.UploadsConfig) (*Disk, error) {
	dir := conf.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(core.Getwd(), dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating upload dir %s", dir)
	}
	return &Disk{dir: dir, urlPrefix: conf.URLPrefix, maxSize: conf.MaxFileSize, now: time.Now}, nil
}

func (d *Disk) Dir() string { return d.dir }

// Save copies the uploaded file to disk under a timestamped, sanitized name.
func (d *Disk) Save(fh *multipart.FileHeader) (*group.FileRef, error) {
	if d.maxSize > 0 && fh.Size > d.maxSize {
		return nil, ErrFileTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening uploaded file")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer src.Close()

	name := fmt.Sprintf("%d_%s", d.now().UnixNano()/int64(time.Millisecond), unsafeChars.ReplaceAllString(filepath.Base(fh.Filename), "_"))
	dst, err := os.OpenFile(filepath.Join(d.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "creating file")
	}
	size, err := io.Copy(dst, src)
	if cErr := dst.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		return nil, errors.Wrap(err, "writing file")
	}

	return &group.FileRef{
		OriginalName: fh.Filename,
		Filename:     name,
		Mimetype:     fh.Header.Get("Content-Type"),
		Size:         size,
		Path:         path.Join(d.urlPrefix, name),
	}, nil
}

// Remove deletes the stored files, ignoring the ones already gone.
func (d *Disk) Remove(refs ...*group.FileRef) {
	for _, ref := range refs {
		if ref == nil || ref.Filename == "" {
			continue
		}
		_ = os.Remove(filepath.Join(d.dir, filepath.Base(ref.Filename)))
	}
}
