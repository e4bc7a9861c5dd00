package crashline

import (
	"errors"
	"fmt"
	"slices"
	"testing"
)

func collect(n *Normalizer, err error) []error {
	return slices.Collect(n.Strip(err))
}

func TestNormalizer_DefaultKinds(t *testing.T) {
	n := NewNormalizer()

	if !n.Contains(KindOf(errors.Join(errors.New("a")))) {
		t.Error("errors.Join kind should be a default wrapper")
	}
	if !n.Contains(KindOf(fmt.Errorf("%w and %w", errors.New("a"), errors.New("b")))) {
		t.Error("multi-%w kind should be a default wrapper")
	}
	if n.Contains(KindOf(fmt.Errorf("ctx: %w", errors.New("a")))) {
		t.Error("single-%w wrapping carries a message and should not be stripped by default")
	}
	if got := len(n.Kinds()); got != 2 {
		t.Errorf("len(Kinds()) = %d, want 2", got)
	}
}

func TestNormalizer_StripsJoinToCauses(t *testing.T) {
	n := NewNormalizer()
	a := errors.New("a")
	b := errors.New("b")

	got := collect(n, errors.Join(a, b))
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("Strip(Join(a, b)) = %v, want [a b]", got)
	}
}

func TestNormalizer_AggregateWithWrappedMember(t *testing.T) {
	n := NewNormalizer()
	n.Add(KindFor[*wrapperError]())

	c := errors.New("C")
	b := errors.New("B")
	a := &wrapperError{msg: "A", inner: c}

	got := collect(n, errors.Join(a, b))
	if len(got) != 2 {
		t.Fatalf("Strip yielded %d errors, want 2: %v", len(got), got)
	}
	if got[0] != c || got[1] != b {
		t.Errorf("Strip = [%v %v], want [C B]", got[0], got[1])
	}
}

func TestNormalizer_NestedAggregatesFlatten(t *testing.T) {
	n := NewNormalizer()
	e1, e2, e3 := errors.New("1"), errors.New("2"), errors.New("3")

	err := errors.Join(e1, fmt.Errorf("%w; %w", e2, errors.Join(e3)))
	got := collect(n, err)

	want := []error{e1, e2, e3}
	if !slices.Equal(got, want) {
		t.Errorf("Strip = %v, want %v", got, want)
	}
}

func TestNormalizer_NonWrapperYieldedUnchanged(t *testing.T) {
	n := NewNormalizer()
	err := fmt.Errorf("loading config: %w", errors.New("missing"))

	got := collect(n, err)
	if len(got) != 1 || got[0] != err {
		t.Errorf("Strip = %v, want the error itself", got)
	}
}

func TestNormalizer_WrapperWithoutCauseYieldedUnchanged(t *testing.T) {
	n := NewNormalizer()
	n.Add(KindFor[*wrapperError]())
	err := &wrapperError{msg: "empty", inner: nil}

	got := collect(n, err)
	if len(got) != 1 || got[0] != err {
		t.Errorf("Strip = %v, want the wrapper itself", got)
	}
}

func TestNormalizer_NilYieldsNothing(t *testing.T) {
	n := NewNormalizer()
	if got := collect(n, nil); len(got) != 0 {
		t.Errorf("Strip(nil) = %v, want empty", got)
	}
}

func TestNormalizer_Remove(t *testing.T) {
	n := NewNormalizer()
	n.Remove(DefaultWrapperKinds()...)

	err := errors.Join(errors.New("a"), errors.New("b"))
	got := collect(n, err)
	if len(got) != 1 || got[0] != err {
		t.Errorf("after Remove, Strip = %v, want the join itself", got)
	}
	if len(n.Kinds()) != 0 {
		t.Errorf("Kinds() = %v, want empty", n.Kinds())
	}
}

func TestNormalizer_AddIsIdempotent(t *testing.T) {
	n := NewNormalizer()
	k := KindFor[*wrapperError]()
	n.Add(k, k, nil)
	n.Add(k)

	count := 0
	for _, existing := range n.Kinds() {
		if existing == k {
			count++
		}
	}
	if count != 1 {
		t.Errorf("kind registered %d times, want 1", count)
	}
}

// cyclicError unwraps to whatever next points at, allowing cycles.
type cyclicError struct {
	next *cyclicError
}

func (e *cyclicError) Error() string { return "cycle" }
func (e *cyclicError) Unwrap() error {
	if e.next == nil {
		return nil
	}
	return e.next
}

func TestNormalizer_CycleTerminates(t *testing.T) {
	n := NewNormalizer()
	n.Add(KindFor[*cyclicError]())

	a := &cyclicError{}
	b := &cyclicError{next: a}
	a.next = b

	got := collect(n, a)
	if len(got) != 0 {
		t.Errorf("a pure wrapper cycle has no leaf, Strip = %v", got)
	}
}

func TestNormalizer_DepthCap(t *testing.T) {
	n := NewNormalizer()
	n.Add(KindFor[*wrapperError]())

	var err error = errors.New("leaf")
	for i := 0; i < MaxUnwrapDepth+10; i++ {
		err = &wrapperError{msg: fmt.Sprintf("w%d", i), inner: err}
	}

	got := collect(n, err)
	if len(got) != 1 {
		t.Fatalf("Strip yielded %d errors, want 1", len(got))
	}
	if _, ok := got[0].(*wrapperError); !ok {
		t.Errorf("past the depth cap the wrapper should be yielded, got %T", got[0])
	}
}

func TestNormalizer_EarlyBreak(t *testing.T) {
	n := NewNormalizer()
	err := errors.Join(errors.New("a"), errors.New("b"), errors.New("c"))

	var seen int
	for range n.Strip(err) {
		seen++
		break
	}
	if seen != 1 {
		t.Errorf("seen = %d, want 1", seen)
	}
}
