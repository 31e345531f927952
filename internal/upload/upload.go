package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/crownvault/internal/imaging"
	"github.com/dukerupert/crownvault/internal/storage"
)

const (
	// MaxFileSize is the per-image ceiling. One oversized image rejects the
	// whole batch.
	MaxFileSize = 10 << 20

	KeyPrefix = "watches/"

	MsgNoImages   = "Please choose image files (JPG, PNG, WebP)."
	MsgTooLarge   = "Each image must be 10 MB or smaller."
	MsgSomeFailed = "Some images failed to upload. Please try again."
)

// File is one entry of a submitted batch.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// FromMultipart adapts multipart headers to Files.
func FromMultipart(headers []*multipart.FileHeader) []File {
	files := make([]File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return files
}

type Uploader struct {
	storage storage.Storage
	logger  *slog.Logger
	now     func() time.Time
}

func NewUploader(s storage.Storage, logger *slog.Logger) *Uploader {
	return &Uploader{storage: s, logger: logger, now: time.Now}
}

// HandleFiles validates a batch, uploads every image concurrently and
// returns images with the new URLs appended in input order. The returned
// string is the single current error, empty when everything succeeded.
func (u *Uploader) HandleFiles(ctx context.Context, files []File, images []string) ([]string, string) {
	var valid []File
	for _, f := range files {
		if strings.HasPrefix(f.ContentType, "image/") {
			valid = append(valid, f)
		}
	}
	if len(valid) == 0 {
		return images, MsgNoImages
	}
	for _, f := range valid {
		if f.Size > MaxFileSize {
			return images, MsgTooLarge
		}
	}

	urls := make([]string, len(valid))
	var g errgroup.Group
	for i, f := range valid {
		g.Go(func() error {
			url, err := u.uploadOne(ctx, f)
			if err != nil {
				u.logger.Error("upload image", "file", f.Name, "error", err)
				return nil
			}
			urls[i] = url
			return nil
		})
	}
	g.Wait()

	out := make([]string, 0, len(images)+len(valid))
	out = append(out, images...)
	failed := 0
	for _, url := range urls {
		if url == "" {
			failed++
			continue
		}
		out = append(out, url)
	}

	if failed > 0 {
		return out, MsgSomeFailed
	}
	return out, ""
}

func (u *Uploader) uploadOne(ctx context.Context, f File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if len(data) > MaxFileSize {
		return "", fmt.Errorf("file exceeds %d bytes", MaxFileSize)
	}

	if out, resized, err := imaging.Normalize(data, f.ContentType); err != nil {
		u.logger.Warn("image not normalized, storing original", "file", f.Name, "error", err)
	} else if resized {
		data = out
	}

	key := u.objectKey(f)
	if err := u.storage.Upload(ctx, key, f.ContentType, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return u.storage.PublicURL(key), nil
}

func (u *Uploader) objectKey(f File) string {
	return fmt.Sprintf("%s%d-%s.%s", KeyPrefix, u.now().UnixMilli(), uuid.NewString(), extension(f))
}

func extension(f File) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), "."); ext != "" {
		return ext
	}
	switch f.ContentType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}

// Remove drops the image at index i. Stored objects are left alone since a
// removed URL may still be referenced by a saved item.
func Remove(images []string, i int) []string {
	out := make([]string, 0, len(images))
	for j, img := range images {
		if j != i {
			out = append(out, img)
		}
	}
	return out
}
