package canonical

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Shop describes how one store's product URLs are recognized and rewritten.
type Shop struct {
	Name string `yaml:"name"`
	// Host is the canonical host every alias maps to.
	Host    string   `yaml:"host"`
	Aliases []string `yaml:"aliases"`
	// ProductPattern matches the cleaned path of a single-product page.
	ProductPattern string `yaml:"product_pattern"`
	// CanonicalPath is expanded against ProductPattern's submatches ($1, $2, ...).
	CanonicalPath string `yaml:"canonical_path"`
	// KeepQuery lists query parameters that are part of product identity.
	KeepQuery []string `yaml:"keep_query"`
}

type shopsFile struct {
	Shops []Shop `yaml:"shops"`
}

var errNoShops = errors.New("shops file defines no shops")

// DefaultShops is the built-in shop table used when no shops file is configured.
func DefaultShops() []Shop {
	return []Shop{
		{
			Name:           "amazon",
			Host:           "www.amazon.com",
			Aliases:        []string{"amazon.com", "smile.amazon.com", "m.amazon.com"},
			ProductPattern: `^/(?:[^/]+/)?(?:dp|gp/product)/([A-Z0-9]{10})(?:/.*)?$`,
			CanonicalPath:  "/dp/$1",
		},
		{
			Name:           "ebay",
			Host:           "www.ebay.com",
			Aliases:        []string{"ebay.com", "m.ebay.com"},
			ProductPattern: `^/itm/(?:[^/]+/)?(\d+)$`,
			CanonicalPath:  "/itm/$1",
		},
		{
			Name:           "ozon",
			Host:           "www.ozon.ru",
			Aliases:        []string{"ozon.ru", "m.ozon.ru"},
			ProductPattern: `^/product/([a-z0-9-]+)(?:/.*)?$`,
			CanonicalPath:  "/product/$1/",
		},
		{
			Name:           "wildberries",
			Host:           "www.wildberries.ru",
			Aliases:        []string{"wildberries.ru", "wb.ru", "www.wb.ru"},
			ProductPattern: `^/catalog/(\d+)/detail\.aspx$`,
			CanonicalPath:  "/catalog/$1/detail.aspx",
		},
	}
}

// LoadShopsFile reads a YAML document of the form `shops: [...]`.
func LoadShopsFile(path string) ([]Shop, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shops file %s: %w", path, err)
	}

	var f shopsFile
	if unmarshalErr := yaml.Unmarshal(data, &f); unmarshalErr != nil {
		return nil, fmt.Errorf("parse shops file %s: %w", path, unmarshalErr)
	}
	if len(f.Shops) == 0 {
		return nil, errNoShops
	}
	return f.Shops, nil
}

type compiledShop struct {
	Shop
	pattern *regexp.Regexp
	keep    map[string]struct{}
}

func compileShop(s Shop) (*compiledShop, error) {
	if s.Name == "" || s.Host == "" {
		return nil, fmt.Errorf("shop %q: name and host are required", s.Name)
	}
	if s.ProductPattern == "" || s.CanonicalPath == "" {
		return nil, fmt.Errorf("shop %q: product_pattern and canonical_path are required", s.Name)
	}

	re, err := regexp.Compile(s.ProductPattern)
	if err != nil {
		return nil, fmt.Errorf("shop %q: compile product_pattern: %w", s.Name, err)
	}

	keep := make(map[string]struct{}, len(s.KeepQuery))
	for _, k := range s.KeepQuery {
		keep[k] = struct{}{}
	}

	s.Host = strings.ToLower(s.Host)
	return &compiledShop{Shop: s, pattern: re, keep: keep}, nil
}

// canonicalPath rewrites a cleaned path to the shop's canonical form.
// ok is false when the path is not a single-product page.
func (s *compiledShop) canonicalPath(p string) (string, bool) {
	idx := s.pattern.FindStringSubmatchIndex(p)
	if idx == nil {
		return p, false
	}
	return string(s.pattern.ExpandString(nil, s.CanonicalPath, p, idx)), true
}
