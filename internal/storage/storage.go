package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// Storage holds uploaded watch images and hands out their public URLs.
type Storage interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
	PublicURL(key string) string
	// KeyFromURL reverses PublicURL. It reports false for URLs this
	// storage did not issue.
	KeyFromURL(url string) (string, bool)
	Delete(ctx context.Context, key string) error
}

func cleanKey(key string) (string, error) {
	k := strings.TrimLeft(path.Clean("/"+key), "/")
	if k == "" || k != strings.TrimLeft(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return k, nil
}

func keyFromURL(base, url string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key, err := cleanKey(strings.TrimPrefix(url, prefix))
	if err != nil {
		return "", false
	}
	return key, true
}
