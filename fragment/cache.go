// Package fragment caches rendered view HTML reported by the host, with
// scripts and inline event handlers removed.
package fragment

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Cache holds sanitized fragments per activation key.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Put sanitizes raw and stores it under key.
func (c *Cache) Put(key, raw string) error {
	clean, err := Sanitize(raw)
	if err != nil {
		return fmt.Errorf("caching fragment %q: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = clean
	return nil
}

// Get returns the fragment stored under key.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[key]
	return s, ok
}

// Reset drops every fragment.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string)
}

// Sanitize parses raw as the body of a div and renders it back without
// script elements and on* attributes.
func Sanitize(raw string) (string, error) {
	parent := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(raw), parent)
	if err != nil {
		return "", fmt.Errorf("parsing fragment: %w", err)
	}

	var b strings.Builder
	for _, n := range nodes {
		if isScript(n) {
			continue
		}
		strip(n)
		if err := html.Render(&b, n); err != nil {
			return "", fmt.Errorf("rendering fragment: %w", err)
		}
	}
	return b.String(), nil
}

func strip(n *html.Node) {
	if n.Type == html.ElementNode {
		attrs := n.Attr[:0]
		for _, a := range n.Attr {
			if strings.HasPrefix(strings.ToLower(a.Key), "on") {
				continue
			}
			attrs = append(attrs, a)
		}
		n.Attr = attrs
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if isScript(c) {
			n.RemoveChild(c)
		} else {
			strip(c)
		}
		c = next
	}
}

func isScript(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Script
}
