// normalize.go strips wrapper errors so only the meaningful causes are reported.

package crashline

import (
	"errors"
	"fmt"
	"iter"
	"reflect"
	"sync"
)

// MaxUnwrapDepth bounds how far Strip descends into a cause chain.
// Causes beyond this depth are reported as-is.
const MaxUnwrapDepth = 32

// Kind identifies an error's dynamic type.
type Kind = reflect.Type

// KindOf returns the kind of err.
func KindOf(err error) Kind {
	return reflect.TypeOf(err)
}

// KindFor returns the kind for the error type T, e.g. KindFor[*MyWrapper]().
func KindFor[T error]() Kind {
	return reflect.TypeFor[T]()
}

var (
	joinKind      = KindOf(errors.Join(errors.New("a"), errors.New("b")))
	multiWrapKind = KindOf(fmt.Errorf("%w %w", errors.New("a"), errors.New("b")))
)

// DefaultWrapperKinds returns the standard library's pure indirection kinds:
// the result of errors.Join and of fmt.Errorf with more than one %w verb.
func DefaultWrapperKinds() []Kind {
	return []Kind{joinKind, multiWrapKind}
}

// Normalizer decides which errors are sent for a single captured error.
// It is safe for concurrent use.
type Normalizer struct {
	mu    sync.RWMutex
	kinds []Kind
}

// NewNormalizer creates a Normalizer seeded with DefaultWrapperKinds.
func NewNormalizer() *Normalizer {
	n := &Normalizer{}
	n.Add(DefaultWrapperKinds()...)
	return n
}

// Add registers wrapper kinds. Kinds already present are ignored.
func (n *Normalizer) Add(kinds ...Kind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range kinds {
		if k == nil || n.containsLocked(k) {
			continue
		}
		n.kinds = append(n.kinds, k)
	}
}

// Remove unregisters wrapper kinds so errors of those kinds are sent whole.
func (n *Normalizer) Remove(kinds ...Kind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range kinds {
		for i, existing := range n.kinds {
			if existing == k {
				n.kinds = append(n.kinds[:i], n.kinds[i+1:]...)
				break
			}
		}
	}
}

// Contains reports whether k is a registered wrapper kind.
func (n *Normalizer) Contains(k Kind) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.containsLocked(k)
}

// Kinds returns the registered wrapper kinds in registration order.
func (n *Normalizer) Kinds() []Kind {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Kind, len(n.kinds))
	copy(out, n.kinds)
	return out
}

func (n *Normalizer) containsLocked(k Kind) bool {
	for _, existing := range n.kinds {
		if existing == k {
			return true
		}
	}
	return false
}

type stripFrame struct {
	err   error
	depth int
}

// Strip yields the errors to report for err, in order.
//
// An error whose kind is registered and which carries a cause is replaced by
// its cause; a registered multi-cause error is replaced by each of its causes,
// stripped independently and concatenated. Anything else is yielded unchanged.
// Cycles are cut by skipping already-visited pointer errors. A nil err
// yields nothing.
func (n *Normalizer) Strip(err error) iter.Seq[error] {
	kinds := n.Kinds()
	isWrapper := func(e error) bool {
		t := KindOf(e)
		for _, k := range kinds {
			if k == t {
				return true
			}
		}
		return false
	}

	return func(yield func(error) bool) {
		if err == nil {
			return
		}
		visited := make(map[error]struct{})
		stack := []stripFrame{{err: err}}

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			e := top.err

			if KindOf(e).Kind() == reflect.Pointer {
				if _, seen := visited[e]; seen {
					continue
				}
				visited[e] = struct{}{}
			}

			causes := wrappedCauses(e)
			if top.depth >= MaxUnwrapDepth || len(causes) == 0 || !isWrapper(e) {
				if !yield(e) {
					return
				}
				continue
			}

			// Push in reverse so the first cause is processed first.
			for i := len(causes) - 1; i >= 0; i-- {
				stack = append(stack, stripFrame{err: causes[i], depth: top.depth + 1})
			}
		}
	}
}

// wrappedCauses returns the non-nil direct causes of err.
func wrappedCauses(err error) []error {
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		var out []error
		for _, c := range u.Unwrap() {
			if c != nil {
				out = append(out, c)
			}
		}
		return out
	case interface{ Unwrap() error }:
		if c := u.Unwrap(); c != nil {
			return []error{c}
		}
	}
	return nil
}
