// Package source obtains document bytes and opens them with the page
// library, falling back through the configured tiers for stored documents.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"annotate/internal/domain"
	"annotate/internal/pdfdoc"
)

// ErrExhausted means every tier failed for a stored document.
var ErrExhausted = errors.New("all source tiers failed")

type Tier string

const (
	TierSigned Tier = "signed"
	TierPublic Tier = "public"
	TierRaw    Tier = "raw"
	// TierDirect marks bytes, URLs and paths supplied by the caller.
	TierDirect Tier = "direct"
)

// DefaultTiers is the order used when Options.Tiers is empty.
var DefaultTiers = []Tier{TierSigned, TierPublic, TierRaw}

// ParseTiers reads a comma separated tier list such as "signed,raw".
func ParseTiers(s string) ([]Tier, error) {
	var tiers []Tier
	for _, part := range strings.Split(s, ",") {
		switch t := Tier(strings.TrimSpace(part)); t {
		case TierSigned, TierPublic, TierRaw:
			tiers = append(tiers, t)
		case "":
		default:
			return nil, fmt.Errorf("unknown source tier %q", t)
		}
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("no source tiers in %q", s)
	}
	return tiers, nil
}

// Source is exactly one of raw bytes, a URL, a local file path or a stored
// document ID.
type Source struct {
	Bytes      []byte
	URL        string
	Path       string
	DocumentID string
}

func (s Source) validate() error {
	n := 0
	if s.Bytes != nil {
		n++
	}
	for _, v := range []string{s.URL, s.Path, s.DocumentID} {
		if v != "" {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("source must name exactly one of bytes, url, path or document id")
	}
	return nil
}

// Opened is a document ready for rendering.
type Opened struct {
	Doc        pdfdoc.Document
	DocumentID string
	Record     *domain.DocumentRecord
	Tier       Tier
}

type Options struct {
	Tiers      []Tier
	LinkTTL    time.Duration
	HTTPClient *http.Client
}

type Resolver struct {
	lib     pdfdoc.Library
	objects domain.ObjectStore
	docs    domain.DocumentStore
	opts    Options
}

// NewResolver builds a resolver. objects and docs may be nil when only
// direct sources are used; without docs a document ID is used as the
// storage key.
func NewResolver(lib pdfdoc.Library, objects domain.ObjectStore, docs domain.DocumentStore, opts Options) *Resolver {
	if len(opts.Tiers) == 0 {
		opts.Tiers = DefaultTiers
	}
	if opts.LinkTTL <= 0 {
		opts.LinkTTL = time.Hour
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Resolver{lib: lib, objects: objects, docs: docs, opts: opts}
}

// Resolve fetches and opens src.
func (r *Resolver) Resolve(ctx context.Context, src Source) (*Opened, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	switch {
	case src.Bytes != nil:
		return r.open(ctx, src.Bytes, TierDirect)
	case src.Path != "":
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src.Path, err)
		}
		return r.open(ctx, data, TierDirect)
	case src.URL != "":
		data, err := r.fetch(ctx, src.URL)
		if err != nil {
			return nil, err
		}
		return r.open(ctx, data, TierDirect)
	}
	return r.resolveStored(ctx, src.DocumentID)
}

func (r *Resolver) resolveStored(ctx context.Context, id string) (*Opened, error) {
	if r.objects == nil {
		return nil, fmt.Errorf("%w: no object store configured", ErrExhausted)
	}
	key := id
	var rec *domain.DocumentRecord
	if r.docs != nil {
		var err error
		rec, err = r.docs.GetDocument(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: document %s: %w", ErrExhausted, id, err)
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("%w: document %s: %w", ErrExhausted, id, err)
		}
		key = rec.StorageKey
	}

	var errs []error
	for _, tier := range r.opts.Tiers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := r.fetchTier(ctx, tier, key)
		if err != nil {
			log.Printf("source: %s tier failed for %s: %v", tier, id, err)
			errs = append(errs, fmt.Errorf("%s: %w", tier, err))
			continue
		}
		opened, err := r.open(ctx, data, tier)
		if err == nil {
			opened.DocumentID = id
			opened.Record = rec
			return opened, nil
		}
		log.Printf("source: open via %s tier failed for %s: %v", tier, id, err)
		errs = append(errs, fmt.Errorf("%s open: %w", tier, err))
		if tier == TierRaw {
			break
		}
		// The bytes arrived but did not open: one retry from raw bytes.
		data, rerr := r.fetchTier(ctx, TierRaw, key)
		if rerr == nil {
			opened, rerr = r.open(ctx, data, TierRaw)
		}
		if rerr == nil {
			opened.DocumentID = id
			opened.Record = rec
			return opened, nil
		}
		errs = append(errs, fmt.Errorf("raw retry: %w", rerr))
		break
	}
	return nil, fmt.Errorf("%w for %s: %w", ErrExhausted, id, errors.Join(errs...))
}

func (r *Resolver) fetchTier(ctx context.Context, tier Tier, key string) ([]byte, error) {
	switch tier {
	case TierSigned:
		url, err := r.objects.SignedURL(ctx, key, r.opts.LinkTTL)
		if err != nil {
			return nil, fmt.Errorf("signed link: %w", err)
		}
		return r.fetch(ctx, url)
	case TierPublic:
		url, err := r.objects.PublicURL(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("public link: %w", err)
		}
		return r.fetch(ctx, url)
	case TierRaw:
		return r.objects.Download(ctx, key)
	}
	return nil, fmt.Errorf("unknown tier %q", tier)
}

func (r *Resolver) open(ctx context.Context, data []byte, tier Tier) (*Opened, error) {
	doc, err := r.lib.Open(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return &Opened{Doc: doc, Tier: tier}, nil
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
