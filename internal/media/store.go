// Package media stores report photos (the original report image and the
// municipality's "after" image) and hands back a URL-ish reference.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
	ErrUnknownRef      = errors.New("not a reference issued by this store")
)

// Store persists one uploaded image and returns its public reference.
// Delete removes an image whose report was never written; deleting a
// missing image is not an error.
type Store interface {
	Save(ctx context.Context, appID, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}

var allowedExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
}

var safeAppID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// LocalStore writes images below dir/<app_id>/ and serves them from baseURL.
type LocalStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

func NewLocalStore(dir, baseURL string, maxBytes int64) *LocalStore {
	return &LocalStore{
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
	}
}

func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Save(ctx context.Context, appID, filename string, r io.Reader) (string, error) {
	if !safeAppID.MatchString(appID) {
		return "", fmt.Errorf("invalid app id %q", appID)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowedExt[ext]
	if !ok {
		return "", ErrUnsupportedType
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return "", ErrUnsupportedType
		}
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if sniff(head) != want {
		return "", ErrUnsupportedType
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.dir, appID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var body io.Reader = io.MultiReader(bytes.NewReader(head), r)
	if s.maxBytes > 0 {
		body = io.LimitReader(body, s.maxBytes+1)
	}
	written, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		return "", ErrTooLarge
	}

	name := uuid.New().String() + ext
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return s.baseURL + "/" + appID + "/" + name, nil
}

func (s *LocalStore) Delete(_ context.Context, ref string) error {
	rel, ok := strings.CutPrefix(ref, s.baseURL+"/")
	if !ok {
		return ErrUnknownRef
	}
	appID, name, ok := strings.Cut(rel, "/")
	if !ok || !safeAppID.MatchString(appID) || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return ErrUnknownRef
	}
	if err := os.Remove(filepath.Join(s.dir, appID, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

// sniff maps the leading bytes to one of the allowed content types.
// HEIC is not known to net/http, so its ftyp box is checked by hand.
func sniff(head []byte) string {
	if len(head) >= 12 && string(head[4:8]) == "ftyp" {
		switch string(head[8:12]) {
		case "heic", "heix", "heim", "heis", "mif1", "msf1":
			return "image/heic"
		}
	}
	return http.DetectContentType(head)
}
