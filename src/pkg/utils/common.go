package utils

import (
	"math/rand"

	"github.com/Blackdeer1524/bufmgr/src/pkg/assert"
)

func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}

	return v
}

type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// GenerateUniqueInts returns count distinct values from [lo, hi].
func GenerateUniqueInts[T Integer](count int, lo, hi T, rng *rand.Rand) []T {
	assert.Assert(lo <= hi, "empty range [%v, %v]", lo, hi)

	span := int(hi-lo) + 1
	assert.Assert(count <= span, "cannot pick %d values out of %d", count, span)

	if count == 0 {
		return []T{}
	}

	// dense picks: partial Fisher-Yates over the whole range
	if count > span/2 {
		all := make([]T, span)
		for i := range all {
			all[i] = lo + T(i)
		}

		for i := 0; i < count; i++ {
			j := i + rng.Intn(span-i)
			all[i], all[j] = all[j], all[i]
		}

		return all[:count]
	}

	seen := make(map[T]struct{}, count)
	res := make([]T, 0, count)
	for len(res) < count {
		v := lo + T(rng.Intn(span))
		if _, ok := seen[v]; ok {
			continue
		}

		seen[v] = struct{}{}
		res = append(res, v)
	}

	return res
}

// Stamp fills buf with a repeating pattern derived from seed. HasStamp
// checks a buffer against the same pattern.
func Stamp(buf []byte, seed uint64) {
	for i := range buf {
		buf[i] = byte(seed >> (8 * (uint(i) % 8)))
	}
}

func HasStamp(buf []byte, seed uint64) bool {
	for i := range buf {
		if buf[i] != byte(seed>>(8*(uint(i)%8))) {
			return false
		}
	}

	return true
}
