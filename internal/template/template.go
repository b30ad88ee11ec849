package template

import (
	"fmt"
	"strings"
	"sync"
)

// Renderer produces the message text for a template key, locale and variable
// set. An unknown key never fails a send cycle; it renders a clearly marked
// placeholder instead so the gap is visible downstream.
type Renderer interface {
	Render(key, locale string, vars map[string]string) string
}

// Registry is an in-memory Renderer. Templates use {{name}} placeholders.
type Registry struct {
	mu            sync.RWMutex
	templates     map[string]string // composite "key|locale"
	defaultLocale string
}

func NewRegistry(defaultLocale string) *Registry {
	if defaultLocale == "" {
		defaultLocale = "es"
	}
	return &Registry{
		templates:     make(map[string]string),
		defaultLocale: defaultLocale,
	}
}

func (r *Registry) Register(key, locale, body string) {
	r.mu.Lock()
	r.templates[composite(key, locale)] = body
	r.mu.Unlock()
}

func (r *Registry) Render(key, locale string, vars map[string]string) string {
	r.mu.RLock()
	body, ok := r.templates[composite(key, locale)]
	if !ok {
		body, ok = r.templates[composite(key, r.defaultLocale)]
	}
	r.mu.RUnlock()

	if !ok {
		return fmt.Sprintf("[missing template: %s]", key)
	}

	for name, val := range vars {
		body = strings.ReplaceAll(body, "{{"+name+"}}", val)
	}
	return body
}

func composite(key, locale string) string {
	return key + "|" + locale
}
