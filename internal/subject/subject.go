// Package subject defines the value types that identify what a product
// graph computes over: products (the typed output categories), subjects
// (the identities products are computed for), and variants (subject-local
// parameterization).
//
// All three are pure value types with structural identity: two values that
// compare equal are the same request, regardless of where they were built.
package subject

import (
	"fmt"
	"sort"
	"strings"
)

// Product is a type tag identifying a category of computed value.
type Product string

// KV is one (key, value) pair of a variant specification.
type KV struct {
	Key   string
	Value string
}

// Variants is an ordered sequence of (key, value) pairs selecting a
// subject-local variant. Order is preserved: it is part of the value's
// declared form, but CacheKey canonicalizes on the sorted form so that
// two variant lists carrying the same pairs in a different order collide
// on the same node (variants are a set for identity purposes, even though
// callers may declare them in any order).
type Variants []KV

// CacheKey returns a canonical, order-independent string form.
func (vs Variants) CacheKey() string {
	if len(vs) == 0 {
		return ""
	}
	cp := make([]KV, len(vs))
	copy(cp, vs)
	sort.Slice(cp, func(i, j int) bool {
		if cp[i].Key != cp[j].Key {
			return cp[i].Key < cp[j].Key
		}
		return cp[i].Value < cp[j].Value
	})
	var b strings.Builder
	for i, kv := range cp {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(kv.Value)
	}
	return b.String()
}

// Get returns the value for key and whether it was present.
func (vs Variants) Get(key string) (string, bool) {
	for _, kv := range vs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Subject is an identity whose products may be computed. Concrete kinds in
// this package are Address, AddressSet (single, sibling or descendant, per
// its SetKind) and PathGlobs; hosts may define others, but every Subject
// must have a stable, value-comparable CacheKey.
type Subject interface {
	// CacheKey is the canonical string identity of this subject, used to
	// build node identity. Equal subjects must produce equal keys.
	CacheKey() string
	// Kind names the concrete subject kind, used to look up the native
	// filesystem product set and to pick root-node construction rules.
	Kind() string
}

// Address is a (path, name) pair identifying a single buildable unit.
type Address struct {
	Path string
	Name string
}

func (a Address) CacheKey() string { return fmt.Sprintf("addr:%s:%s", a.Path, a.Name) }
func (a Address) Kind() string     { return "address" }

func (a Address) String() string {
	if a.Name == "" {
		return a.Path
	}
	return a.Path + ":" + a.Name
}

// AddressSetKind distinguishes the three ways a set of sibling/descendant
// addresses can be requested relative to a base Address.
type AddressSetKind int

const (
	// SingleAddressKind requests exactly the base address.
	SingleAddressKind AddressSetKind = iota
	// SiblingAddressesKind requests every address declared in the base's
	// containing directory.
	SiblingAddressesKind
	// DescendantAddressesKind requests every address in the base's
	// directory and all subdirectories, recursively.
	DescendantAddressesKind
)

func (k AddressSetKind) String() string {
	switch k {
	case SingleAddressKind:
		return "single"
	case SiblingAddressesKind:
		return "sibling"
	case DescendantAddressesKind:
		return "descendant"
	default:
		return "unknown"
	}
}

// AddressSet is a Subject describing a set of addresses (single, sibling,
// or descendant) relative to Base.
type AddressSet struct {
	Base    Address
	SetKind AddressSetKind
}

func (s AddressSet) CacheKey() string {
	return fmt.Sprintf("addrset:%s:%s", s.SetKind, s.Base.CacheKey())
}

func (s AddressSet) Kind() string { return "addrset:" + s.SetKind.String() }

// FileType distinguishes the native product requested from a glob
// expansion (e.g. files vs. directories).
type FileType string

const (
	FileTypeFiles FileType = "files"
	FileTypeDirs  FileType = "dirs"
)

// PathGlobs is a Subject describing a set of filesystem glob patterns and
// the kind of filesystem entry they should expand to.
type PathGlobs struct {
	Globs    []string
	FileType FileType
}

func (g PathGlobs) CacheKey() string {
	globs := make([]string, len(g.Globs))
	copy(globs, g.Globs)
	sort.Strings(globs)
	return fmt.Sprintf("globs:%s:%s", g.FileType, strings.Join(globs, ","))
}

func (g PathGlobs) Kind() string { return "pathglobs" }
