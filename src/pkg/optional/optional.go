package optional

import (
	"github.com/Blackdeer1524/bufmgr/src/pkg/assert"
)

// Optional holds either nothing or a single value of T. The zero value is
// None.
type Optional[T any] struct {
	set   bool
	value T
}

func (opt *Optional[T]) Emplace(value T) {
	opt.set = true
	opt.value = value
}

// Clear drops the value; the stored T is zeroed so that equal Optionals
// compare equal.
func (opt *Optional[T]) Clear() {
	opt.set = false
	opt.value = *new(T)
}

func (opt Optional[T]) Get() (T, bool) {
	return opt.value, opt.set
}

func (opt Optional[T]) Expect(msg string, args ...any) T {
	assert.Assert(opt.set, append([]any{msg}, args...)...)
	return opt.value
}

func (opt Optional[T]) Unwrap() T {
	assert.Assert(opt.set, "unwrap of an empty optional")
	return opt.value
}

func (opt Optional[T]) IsNone() bool {
	return !opt.set
}
