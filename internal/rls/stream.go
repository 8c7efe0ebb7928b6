package rls

import (
	"github.com/hoohou/plumber/internal/servlet"
	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// OpenStream resolves tok to a StreamableEntity and opens its DRA stream
// handle, used by a module's direct-reference-access read path instead of
// copying bytes through a pipe (§4.1, §4.3).
func (s *Scope) OpenStream(tok servlet.Token) (servlet.StreamHandle, error) {
	ent, err := s.Entity(tok)
	if err != nil {
		return nil, err
	}
	streamable, ok := ent.(servlet.StreamableEntity)
	if !ok {
		return nil, pkgerrors.NewUsageError("rls.OpenStream", "entity does not back a DRA stream")
	}
	return streamable.OpenStream()
}
