package graph

import "strings"

// TypeExpr is a servlet-declared type, parsed as a sequence of simple type
// name tokens (§4.4 "a servlet's declared type is a sequence of simple type
// names, with variables standing in for an as-yet-unknown segment").
//
// A token beginning with "$" is a variable. A variable in the last position
// of a dst expression additionally captures the remainder of the matched
// src sequence, not just one token; a variable anywhere else captures
// exactly one token.
type TypeExpr []string

// ParseTypeExpr splits a PD's declared type-name field on whitespace.
func ParseTypeExpr(s string) TypeExpr {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return TypeExpr(strings.Fields(s))
}

func (e TypeExpr) String() string { return strings.Join(e, " ") }

func isVariable(tok string) bool { return strings.HasPrefix(tok, "$") }

// rawTypeName is the reserved untyped sentinel (§4.4): a PD declared as
// this type accepts or produces any type without a variable binding.
const rawTypeName = "plumber.base.raw"

// Resolver is the pluggable collaborator that decides whether one simple
// type name may stand in for another. The core graph package intentionally
// does not implement a general subtyping/generalisation relation — per the
// Open Question (c) note, "generalisation" is a property of the deployed
// protocol-descriptor set, not of the scheduler, so it is delegated here.
// defaultResolver below only implements identity plus the raw-type escape
// hatch; a deployment with a richer type hierarchy supplies its own.
type Resolver interface {
	// Convertible reports whether a value of type from may be used where
	// type to is declared.
	Convertible(from, to string) bool
}

type defaultResolver struct{}

func (defaultResolver) Convertible(from, to string) bool {
	if from == to {
		return true
	}
	return from == rawTypeName || to == rawTypeName
}

// DefaultResolver is the built-in identity-plus-raw Resolver used when a
// Builder is not given one explicitly.
var DefaultResolver Resolver = defaultResolver{}

// bindingSet accumulates a node's variable bindings across all of the PD
// equations checked for it, so that the same variable name used on two
// different PDs of one servlet instance is required to resolve to the same
// concrete sequence (§4.4 "equations ... solved by a convertibility-closure
// procedure").
type bindingSet map[string]TypeExpr

// unify attempts to match src against the (possibly variable-bearing) dst
// pattern, extending bindings in place. It returns the concrete TypeExpr
// that dst resolves to once bound.
func unify(src, dst TypeExpr, bindings bindingSet, resolver Resolver) (TypeExpr, bool) {
	if resolver == nil {
		resolver = DefaultResolver
	}

	out := make(TypeExpr, 0, len(dst))
	si := 0
	for di, tok := range dst {
		last := di == len(dst)-1
		if !isVariable(tok) {
			if si >= len(src) {
				return nil, false
			}
			if !resolver.Convertible(src[si], tok) {
				return nil, false
			}
			out = append(out, tok)
			si++
			continue
		}

		var captured TypeExpr
		if last {
			captured = append(TypeExpr(nil), src[si:]...)
			si = len(src)
		} else {
			if si >= len(src) {
				return nil, false
			}
			captured = TypeExpr{src[si]}
			si++
		}

		if existing, bound := bindings[tok]; bound {
			if existing.String() != captured.String() {
				return nil, false
			}
		} else {
			bindings[tok] = captured
		}
		out = append(out, captured...)
	}
	if si != len(src) {
		return nil, false
	}
	return out, true
}
