// Package canonical turns raw shop URLs into canonical product identities.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

var (
	ErrInvalidURL           = errors.New("invalid url")
	ErrUnsupportedShop      = errors.New("unsupported shop")
	ErrNotASingleProductURL = errors.New("not a single product url")
)

// Identity is the canonical form of a product URL.
type Identity struct {
	Shop string `json:"shop"`
	URL  string `json:"url"`
	Hash string `json:"hash"`
}

// Registry resolves hosts to shops. It is safe for concurrent use and can be
// swapped atomically with Replace.
type Registry struct {
	mu     sync.RWMutex
	byHost map[string]*compiledShop
	names  []string
}

// NewRegistry compiles shops. Duplicate hosts across shops are rejected.
func NewRegistry(shops []Shop) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(shops); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps in a new shop table. On error the current table is kept.
func (r *Registry) Replace(shops []Shop) error {
	byHost := make(map[string]*compiledShop)
	names := make([]string, 0, len(shops))

	for _, s := range shops {
		cs, err := compileShop(s)
		if err != nil {
			return err
		}
		for _, h := range append([]string{cs.Host}, cs.Aliases...) {
			h = strings.ToLower(h)
			if prev, dup := byHost[h]; dup {
				return fmt.Errorf("host %q claimed by both %q and %q", h, prev.Name, cs.Name)
			}
			byHost[h] = cs
		}
		names = append(names, cs.Name)
	}

	r.mu.Lock()
	r.byHost = byHost
	r.names = names
	r.mu.Unlock()
	return nil
}

// Shops lists the configured shop names.
func (r *Registry) Shops() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

func (r *Registry) lookup(host string) (*compiledShop, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byHost[host]
	return s, ok
}

// parse accepts scheme-less input ("www.ozon.ru/product/x") and returns the
// URL with a lowercased, port-free host.
func parse(raw string) (*url.URL, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", fmt.Errorf("%w: empty input", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return nil, "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, host, nil
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return path.Clean("/" + p)
}

// Normalize returns the canonical URL string for raw: https scheme, the
// shop's canonical host, a cleaned path rewritten to the shop's product form
// when it matches, and only identity query parameters in sorted order.
func (r *Registry) Normalize(raw string) (string, error) {
	cs, u, err := r.resolve(raw)
	if err != nil {
		return "", err
	}

	p, _ := cs.canonicalPath(cleanPath(u.EscapedPath()))
	return cs.format(p, u.Query()), nil
}

func (r *Registry) resolve(raw string) (*compiledShop, *url.URL, error) {
	u, host, err := parse(raw)
	if err != nil {
		return nil, nil, err
	}

	cs, ok := r.lookup(host)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedShop, host)
	}
	return cs, u, nil
}

func (s *compiledShop) format(p string, query url.Values) string {
	kept := url.Values{}
	for k, v := range query {
		if _, ok := s.keep[k]; ok {
			kept[k] = v
		}
	}

	out := "https://" + s.Host + p
	if len(kept) > 0 {
		out += "?" + kept.Encode()
	}
	return out
}

// IsSingleProductPage fails with ErrNotASingleProductURL for listing,
// category and search pages.
func (r *Registry) IsSingleProductPage(rawURL string) error {
	cs, u, err := r.resolve(rawURL)
	if err != nil {
		return err
	}
	if _, ok := cs.canonicalPath(cleanPath(u.EscapedPath())); !ok {
		return fmt.Errorf("%w: %s", ErrNotASingleProductURL, rawURL)
	}
	return nil
}

// Canonicalize normalizes raw, checks it is a product page and hashes it.
func (r *Registry) Canonicalize(raw string) (Identity, error) {
	cs, u, err := r.resolve(raw)
	if err != nil {
		return Identity{}, err
	}

	p, ok := cs.canonicalPath(cleanPath(u.EscapedPath()))
	if !ok {
		return Identity{}, fmt.Errorf("%w: %s", ErrNotASingleProductURL, raw)
	}

	canonicalURL := cs.format(p, u.Query())
	return Identity{Shop: cs.Name, URL: canonicalURL, Hash: IdentityHash(canonicalURL)}, nil
}

// IdentityHash is the hex SHA-256 of a canonical URL.
func IdentityHash(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// AsValidationError maps canonicalization failures onto the domain taxonomy.
// Other errors are returned unchanged.
func AsValidationError(field string, err error) error {
	switch {
	case errors.Is(err, ErrInvalidURL):
		return domain.NewValidationError(field, domain.CodeInvalidURL, err.Error())
	case errors.Is(err, ErrUnsupportedShop):
		return domain.NewValidationError(field, domain.CodeUnsupportedShop, err.Error())
	case errors.Is(err, ErrNotASingleProductURL):
		return domain.NewValidationError(field, domain.CodeNotASingleProductURL, err.Error())
	}
	return err
}
