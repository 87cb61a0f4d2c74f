// Package layout owns the on-disk naming contract for originals and
// thumbnails and the upload allow-lists:
//
//	{root}/{id}/{id}{ext}          original
//	{root}/{id}/{id}_w{width}{ext} thumbnail
package layout

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"thumbnailer/internal/models"
)

// contentTypes maps every allowed extension to the only content type it may
// be declared with.
var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// AllowedExtensions lists the accepted upload extensions.
var AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

// AllowedContentTypes lists the accepted declared content types.
var AllowedContentTypes = []string{"image/jpeg", "image/png", "image/gif"}

// Variant selects a stored file of a job: a thumbnail width in pixels, or
// Original.
type Variant int

const Original Variant = 0

func (v Variant) IsOriginal() bool { return v == Original }

// Layout resolves job folders under Root.
type Layout struct {
	Root string
}

// New roots the layout at {storagePath}/images.
func New(storagePath string) *Layout {
	return &Layout{Root: filepath.Join(storagePath, "images")}
}

// Folder returns the directory that holds every file of job id.
func (l *Layout) Folder(id string) string {
	return filepath.Join(l.Root, id)
}

// SaveOriginal stores the uploaded bytes as {id}{ext} inside the job folder
// and returns the written path.
func (l *Layout) SaveOriginal(id, ext string, src io.Reader) (string, error) {
	const op = "layout.SaveOriginal"

	if !ValidID(id) {
		return "", fmt.Errorf("%s: invalid id %q", op, id)
	}
	folder := l.Folder(id)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	path := ResolvePath(folder, id, Original, ext)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return path, f.Close()
}

// NormalizeExt lower-cases ext and makes sure it starts with a dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// FileName is the naming rule: {id}{ext} or {id}_w{width}{ext}.
func FileName(id string, v Variant, ext string) string {
	ext = NormalizeExt(ext)
	if v.IsOriginal() {
		return id + ext
	}
	return id + "_w" + strconv.Itoa(int(v)) + ext
}

// ResolvePath joins folder with the canonical file name of a variant.
func ResolvePath(folder, id string, v Variant, ext string) string {
	return filepath.Join(folder, FileName(id, v, ext))
}

// FindMatching lists the files of a variant in folder, whatever allowed
// extension they were stored with. A missing folder is not an error.
func FindMatching(folder, id string, v Variant) ([]string, error) {
	const op = "layout.FindMatching"

	if !ValidID(id) {
		return nil, fmt.Errorf("%s: invalid id %q", op, id)
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	base := FileName(id, v, "")
	matches := make([]string, 0, 1)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !AllowedExtension(filepath.Ext(name)) {
			continue
		}
		if strings.TrimSuffix(name, filepath.Ext(name)) == base {
			matches = append(matches, filepath.Join(folder, name))
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// AllowedExtension reports whether ext (any case) is on the allow-list.
func AllowedExtension(ext string) bool {
	_, ok := contentTypes[strings.ToLower(ext)]
	return ok
}

// ContentTypeFor returns the content type an allowed extension implies.
func ContentTypeFor(ext string) (string, bool) {
	ct, ok := contentTypes[strings.ToLower(ext)]
	return ct, ok
}

// Validate rejects empty payloads and extension/content-type combinations
// outside the allow-lists. Errors wrap models.ErrValidation.
func Validate(u models.Upload) error {
	if u.Size <= 0 {
		return fmt.Errorf("%w: empty payload", models.ErrValidation)
	}

	ext := strings.ToLower(filepath.Ext(u.Filename))
	want, ok := contentTypes[ext]
	if !ok {
		return fmt.Errorf("%w: extension %q is not allowed", models.ErrValidation, ext)
	}

	ct := strings.ToLower(strings.TrimSpace(u.ContentType))
	if !allowedContentType(ct) {
		return fmt.Errorf("%w: content type %q is not allowed", models.ErrValidation, u.ContentType)
	}
	if ct != want {
		return fmt.Errorf("%w: extension %q does not match content type %q", models.ErrValidation, ext, u.ContentType)
	}
	return nil
}

// IsValidImage is the boolean form of Validate.
func IsValidImage(u models.Upload) bool {
	return Validate(u) == nil
}

func allowedContentType(ct string) bool {
	for _, a := range AllowedContentTypes {
		if a == ct {
			return true
		}
	}
	return false
}

// ValidID accepts identifiers made of [A-Za-z0-9_-]. Anything else could
// escape the storage root or act as a glob metacharacter.
func ValidID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
