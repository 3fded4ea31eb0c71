package app

import (
	"github.com/go-faster/jx"

	"github.com/Blackdeer1524/bufmgr/src/workload"
)

func encodeReport(r workload.Report) []byte {
	var e jx.Encoder

	e.ObjStart()
	e.Field("run_id", func(e *jx.Encoder) { e.Str(r.RunID) })
	e.Field("operations", func(e *jx.Encoder) { e.Int(r.Operations) })
	e.Field("writes", func(e *jx.Encoder) { e.Int(r.Writes) })
	e.Field("exhausted", func(e *jx.Encoder) { e.Int(r.Exhausted) })
	e.Field("verified", func(e *jx.Encoder) { e.Int(r.Verified) })
	e.Field("stats", func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("hits", func(e *jx.Encoder) { e.UInt64(r.Stats.Hits) })
		e.Field("misses", func(e *jx.Encoder) { e.UInt64(r.Stats.Misses) })
		e.Field("evictions", func(e *jx.Encoder) { e.UInt64(r.Stats.Evictions) })
		e.Field("write_backs", func(e *jx.Encoder) { e.UInt64(r.Stats.WriteBacks) })
		e.Field("last_sweep", func(e *jx.Encoder) { e.UInt64(r.Stats.LastSweep) })
		e.ObjEnd()
	})
	e.ObjEnd()

	return e.Bytes()
}
