package ranking

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/rankset/internal/platform/dbctx"
)

// RankFunc computes a typology: the identifiers of the ranked objects, best
// first. Refresh calls it inside the typology's transaction (dbc.Tx is set).
type RankFunc func(dbc dbctx.Context) ([]any, error)

// Typologies maps a typology name to the function computing it.
type Typologies map[string]RankFunc

const (
	descendingPrefix  = "-"
	maxTypologyLength = 64
)

// ParseTypologySpec splits "-popularity" into ("popularity", true).
func ParseTypologySpec(spec string) (string, bool) {
	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, descendingPrefix) {
		return spec[len(descendingPrefix):], true
	}
	return spec, false
}

type typologyResolver struct {
	funcs Typologies

	once  sync.Once
	names []string
}

func newTypologyResolver(typologies Typologies) (*typologyResolver, error) {
	if len(typologies) == 0 {
		return nil, fmt.Errorf("%w: no typologies given", ErrInvalidTypology)
	}
	funcs := make(Typologies, len(typologies))
	for name, fn := range typologies {
		switch {
		case strings.TrimSpace(name) == "":
			return nil, fmt.Errorf("%w: empty name", ErrInvalidTypology)
		case name != strings.TrimSpace(name):
			return nil, fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidTypology, name)
		case strings.HasPrefix(name, descendingPrefix):
			return nil, fmt.Errorf("%w: %q must not start with %q", ErrInvalidTypology, name, descendingPrefix)
		case len(name) > maxTypologyLength:
			return nil, fmt.Errorf("%w: %q longer than %d bytes", ErrInvalidTypology, name, maxTypologyLength)
		case fn == nil:
			return nil, fmt.Errorf("%w: %q has no rank function", ErrInvalidTypology, name)
		}
		funcs[name] = fn
	}
	return &typologyResolver{funcs: funcs}, nil
}

// Names lists the implemented typologies in lexical order. The list is
// computed once per resolver.
func (r *typologyResolver) Names() []string {
	r.once.Do(func() {
		r.names = make([]string, 0, len(r.funcs))
		for name := range r.funcs {
			r.names = append(r.names, name)
		}
		sort.Strings(r.names)
	})
	return append([]string(nil), r.names...)
}

func (r *typologyResolver) Validate(name string) error {
	if _, ok := r.funcs[name]; !ok {
		return fmt.Errorf("%w: %q", ErrTypologyNotImplemented, name)
	}
	return nil
}

func (r *typologyResolver) get(name string) (RankFunc, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTypologyNotImplemented, name)
	}
	return fn, nil
}
