package prompta

import "fmt"

type slotKind int

const (
	slotLiteral slotKind = iota
	slotComputed
)

// Slot is one template position: either a literal string or a function of
// the prepared input. The zero Slot is an empty literal.
type Slot[P any] struct {
	kind    slotKind
	literal string
	compute func(P) (string, error)
}

// Literal returns a slot that always renders to text.
func Literal[P any](text string) Slot[P] {
	return Slot[P]{kind: slotLiteral, literal: text}
}

// Computed returns a slot rendered by fn against the prepared input.
func Computed[P any](fn func(P) string) Slot[P] {
	return Slot[P]{kind: slotComputed, compute: func(in P) (string, error) {
		return fn(in), nil
	}}
}

// ComputedE is Computed for rendering functions that can fail.
func ComputedE[P any](fn func(P) (string, error)) Slot[P] {
	return Slot[P]{kind: slotComputed, compute: fn}
}

// IsComputed reports whether the slot depends on the input.
func (s Slot[P]) IsComputed() bool {
	return s.kind == slotComputed
}

// Template holds the system and user slots of a prompt.
type Template[P any] struct {
	System Slot[P]
	User   Slot[P]
}

// PromptifyFunc evaluates a slot against an input.
type PromptifyFunc[P any] func(slot Slot[P], in P) (string, error)

// Promptify renders a slot for the given input. A panic inside a computed
// slot is reported as a *TemplateError like any other rendering failure.
func Promptify[P any](slot Slot[P], in P) (out string, err error) {
	if slot.kind == slotLiteral {
		return slot.literal, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = &TemplateError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	out, err = slot.compute(in)
	if err != nil {
		return "", &TemplateError{Err: err}
	}
	return out, nil
}
