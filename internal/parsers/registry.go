// Package parsers turns fetched item content into canonical record payloads.
//
// Parsers are selected by item kind through a Registry. Every parser is pure:
// the same item always produces byte-identical JSON and no parser reads the clock.
package parsers

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"

	"github.com/civicportal/portal-sync/internal/model"
)

// Parser converts raw item content into a JSON payload
type Parser interface {
	Parse(item *model.RawItem) (json.RawMessage, error)
}

// ParserFunc adapts a function to the Parser interface
type ParserFunc func(*model.RawItem) (json.RawMessage, error)

// Parse calls f(item)
func (f ParserFunc) Parse(item *model.RawItem) (json.RawMessage, error) {
	return f(item)
}

// Registry maps item kinds to parsers
type Registry struct {
	mu      sync.RWMutex
	parsers map[model.Kind]Parser
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[model.Kind]Parser)}
}

// NewDefaultRegistry creates a registry with a parser for every built-in kind
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(model.KindSpreadsheet, ParserFunc(parseSpreadsheet))
	r.Register(model.KindMarkdown, ParserFunc(parseMarkdown))
	r.Register(model.KindDocument, ParserFunc(parseDocument))
	r.Register(model.KindText, ParserFunc(parseText))
	r.Register(model.KindPDF, ParserFunc(parseMetadata))
	r.Register(model.KindFile, ParserFunc(parseMetadata))
	r.Register(model.KindVideo, ParserFunc(parseVideo))
	r.Register(model.KindRow, ParserFunc(parseRow))
	return r
}

// Register adds or replaces the parser for kind
func (r *Registry) Register(kind model.Kind, p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[kind] = p
}

// Kinds returns the registered kinds in sorted order
func (r *Registry) Kinds() []model.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]model.Kind, 0, len(r.parsers))
	for k := range r.parsers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Parse runs the parser registered for kind. Every failure satisfies errors.Is(err, ErrParse).
func (r *Registry) Parse(kind model.Kind, item *model.RawItem) (json.RawMessage, error) {
	r.mu.RLock()
	p, ok := r.parsers[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnsupportedKindError{Kind: kind}
	}

	payload, err := p.Parse(item)
	if err != nil {
		if errors.Is(err, ErrParse) {
			return nil, err
		}
		return nil, &MalformedContentError{Kind: kind, ExternalID: item.Ref.ExternalID, Err: err}
	}
	return payload, nil
}
