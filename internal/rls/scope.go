// Package rls implements the request-local scope: a token-indexed,
// reference-counted entity table that backs a servlet.Context's
// ScopeAdd/ScopeGet/ScopeCopy calls and the DRA streaming callbacks bound
// to StreamableEntity (§3 "Scope token", §4.3).
package rls

import (
	"sort"
	"sync"

	"github.com/hoohou/plumber/internal/servlet"
	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

type entry struct {
	ent      servlet.Entity
	refcount int32
	// gc marks an entity that must be swept at Close regardless of
	// whether its refcount ever reached zero on its own — the guard
	// against a request whose entities formed a reference cycle the
	// normal Release path can never unwind.
	gc bool
}

// Scope is one request's entity table. The zero value is not usable; call
// New.
type Scope struct {
	mu      sync.Mutex
	entries map[servlet.Token]*entry
	next    servlet.Token
	closed  bool
}

// New constructs an empty Scope.
func New() *Scope {
	return &Scope{entries: make(map[servlet.Token]*entry)}
}

// Add installs ent with an initial refcount of 1 and returns its token
// (§4.3 "scope_add").
func (s *Scope) Add(ent servlet.Entity) (servlet.Token, error) {
	return s.add(ent, false)
}

// AddTracked is like Add but also marks the entity for forced cleanup at
// Close even if its refcount never reaches zero.
func (s *Scope) AddTracked(ent servlet.Entity) (servlet.Token, error) {
	return s.add(ent, true)
}

func (s *Scope) add(ent servlet.Entity, gc bool) (servlet.Token, error) {
	if ent == nil {
		return 0, pkgerrors.NewUsageError("rls.Add", "entity is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, pkgerrors.NewUsageError("rls.Add", "scope is closed")
	}

	s.next++
	tok := s.next
	s.entries[tok] = &entry{ent: ent, refcount: 1, gc: gc}
	return tok, nil
}

// Get resolves a token to its entity's Data(), without changing its
// refcount (§4.3 "scope_get").
func (s *Scope) Get(tok servlet.Token) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[tok]
	if !ok {
		return nil, pkgerrors.NewUsageError("rls.Get", "unknown or already-freed token")
	}
	return e.ent.Data(), nil
}

// Entity resolves a token to its underlying servlet.Entity, for callers
// that need to probe for CopyableEntity/StreamableEntity.
func (s *Scope) Entity(tok servlet.Token) (servlet.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[tok]
	if !ok {
		return nil, pkgerrors.NewUsageError("rls.Entity", "unknown or already-freed token")
	}
	return e.ent, nil
}

// Retain increments a token's refcount, used when more than one pipe
// handle shares the same underlying entity (e.g. a DRA shadow pipe).
func (s *Scope) Retain(tok servlet.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[tok]
	if !ok {
		return pkgerrors.NewUsageError("rls.Retain", "unknown or already-freed token")
	}
	e.refcount++
	return nil
}

// Release decrements a token's refcount, freeing the entity and removing
// it from the table once the count reaches zero (§4.3 invariant: an
// entity's Free callback runs exactly once).
func (s *Scope) Release(tok servlet.Token) error {
	s.mu.Lock()
	e, ok := s.entries[tok]
	if !ok {
		s.mu.Unlock()
		return pkgerrors.NewUsageError("rls.Release", "unknown or already-freed token")
	}
	e.refcount--
	dead := e.refcount <= 0
	if dead {
		delete(s.entries, tok)
	}
	s.mu.Unlock()

	if dead {
		e.ent.Free()
	}
	return nil
}

// Copy invokes the entity's CopyableEntity.Copy and installs the result as
// a fresh, independently reference-counted entity (§4.3 "scope_copy"). It
// fails if the entity does not implement CopyableEntity.
func (s *Scope) Copy(tok servlet.Token) (servlet.Token, error) {
	s.mu.Lock()
	e, ok := s.entries[tok]
	s.mu.Unlock()
	if !ok {
		return 0, pkgerrors.NewUsageError("rls.Copy", "unknown or already-freed token")
	}

	copyable, ok := e.ent.(servlet.CopyableEntity)
	if !ok {
		return 0, pkgerrors.NewUsageError("rls.Copy", "entity does not support scope_copy")
	}
	copied, err := copyable.Copy()
	if err != nil {
		return 0, err
	}
	return s.Add(copied)
}

// Close tears the scope down, force-freeing every entity still present —
// including any whose refcount never reached zero — and returns the
// tokens that leaked (present with a nonzero natural refcount at close),
// sorted for deterministic logging.
func (s *Scope) Close() (leaked []servlet.Token) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	remaining := s.entries
	s.entries = make(map[servlet.Token]*entry)
	s.mu.Unlock()

	tokens := make([]servlet.Token, 0, len(remaining))
	for tok := range remaining {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	for _, tok := range tokens {
		e := remaining[tok]
		if !e.gc {
			leaked = append(leaked, tok)
		}
		e.ent.Free()
	}
	return leaked
}
