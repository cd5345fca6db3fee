// Package objectstore keeps document bytes on the local filesystem and
// issues link tokens for them, served over HTTP by Handler.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"annotate/internal/domain"
)

// DefaultLinkTTL is used when SignedURL is called with ttl <= 0.
const DefaultLinkTTL = time.Hour

type Options struct {
	// BaseURL prefixes issued links, e.g. http://localhost:8080.
	BaseURL string
	// PublicLinks allows PublicURL. Buckets are private by default.
	PublicLinks bool
	Now         func() time.Time
}

// Bucket implements domain.ObjectStore on a directory.
type Bucket struct {
	root  string
	links domain.LinkStore
	opts  Options
}

func NewBucket(root string, links domain.LinkStore, opts Options) (*Bucket, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create bucket directory: %w", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Bucket{root: root, links: links, opts: opts}, nil
}

// SetBaseURL changes the prefix of links issued from now on.
func (b *Bucket) SetBaseURL(u string) { b.opts.BaseURL = strings.TrimRight(u, "/") }

func (b *Bucket) path(key string) (string, error) {
	if key == "" || !filepath.IsLocal(key) {
		return "", &domain.ValidationError{Field: "key", Message: fmt.Sprintf("invalid object key %q", key)}
	}
	return filepath.Join(b.root, filepath.FromSlash(key)), nil
}

func (b *Bucket) linkURL(token string) string {
	return b.opts.BaseURL + "/objects/" + token
}

func (b *Bucket) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := b.stat(key); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	l := &domain.ObjectLink{
		Token:     uuid.NewString(),
		Key:       key,
		ExpiresAt: b.opts.Now().Add(ttl),
	}
	if err := b.links.CreateLink(ctx, l); err != nil {
		return "", err
	}
	return b.linkURL(l.Token), nil
}

func (b *Bucket) PublicURL(ctx context.Context, key string) (string, error) {
	if !b.opts.PublicLinks {
		return "", domain.ErrPublicLinksDisabled
	}
	if _, err := b.stat(key); err != nil {
		return "", err
	}
	l := &domain.ObjectLink{Token: uuid.NewString(), Key: key, Public: true}
	if err := b.links.CreateLink(ctx, l); err != nil {
		return "", err
	}
	return b.linkURL(l.Token), nil
}

func (b *Bucket) stat(key string) (fs.FileInfo, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	return fi, err
}

func (b *Bucket) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Upload writes data under key. The filesystem bucket sniffs content
// types when serving, so contentType is not stored.
func (b *Bucket) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	return os.Rename(tmp, p)
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}
