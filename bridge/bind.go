package bridge

import (
	"fmt"

	"github.com/tomyedwab/sqlbridge/codec"
	"github.com/tomyedwab/sqlbridge/native"
)

func (r *Registry) bind(o any, api string, fn func(s slot) int) int {
	own, _, s, status := r.stmt(o, api)
	if status != StatusOK {
		return status
	}
	rc := fn(s)
	if rc != native.OK {
		own.report(api, rc, native.ErrMsg(s.tls, s.db))
	}
	return rc
}

// BindParameterIndex is the 1-based index of a named parameter such as
// ":id", or 0 when the statement has no such parameter.
func (r *Registry) BindParameterIndex(o any, name string) int {
	_, _, s, status := r.stmt(o, "bind_parameter_index")
	if status != StatusOK {
		return 0
	}
	return native.ParameterIndex(s.tls, s.stmt, name)
}

func (r *Registry) BindNull(o any, i int) int {
	return r.bind(o, "bind_null", func(s slot) int { return native.BindNull(s.tls, s.stmt, i) })
}

func (r *Registry) BindText(o any, i int, v string) int {
	return r.bind(o, "bind_text16", func(s slot) int { return native.BindText(s.tls, s.stmt, i, v) })
}

func (r *Registry) BindInt(o any, i int, v int32) int {
	return r.bind(o, "bind_int", func(s slot) int { return native.BindInt(s.tls, s.stmt, i, v) })
}

func (r *Registry) BindInt64(o any, i int, v int64) int {
	return r.bind(o, "bind_int64", func(s slot) int { return native.BindInt64(s.tls, s.stmt, i, v) })
}

func (r *Registry) BindDouble(o any, i int, v float64) int {
	return r.bind(o, "bind_double", func(s slot) int { return native.BindDouble(s.tls, s.stmt, i, v) })
}

// BindBlob binds a copy of v. An empty v binds a zero-length blob, not NULL.
func (r *Registry) BindBlob(o any, i int, v []byte) int {
	return r.bind(o, "bind_blob", func(s slot) int { return native.BindBlob(s.tls, s.stmt, i, v) })
}

// Bind dispatches b on its type tag.
func (r *Registry) Bind(o any, b Binding) int {
	switch b.Type {
	case codec.BindNull:
		return r.BindNull(o, b.Index)
	case codec.BindText:
		return r.BindText(o, b.Index, b.Text)
	case codec.BindInt:
		return r.BindInt(o, b.Index, int32(b.Int))
	case codec.BindInt64:
		return r.BindInt64(o, b.Index, b.Int)
	case codec.BindDouble:
		return r.BindDouble(o, b.Index, b.Double)
	case codec.BindBlob:
		return r.BindBlob(o, b.Index, b.Blob)
	}
	return r.bind(o, "bind", func(slot) int { return native.Misuse })
}

// BindAll binds every value in order and stops at the first failure.
func (r *Registry) BindAll(o any, bs ...Binding) int {
	for _, b := range bs {
		if rc := r.Bind(o, b); rc != native.OK {
			return rc
		}
	}
	return StatusOK
}

func (b Binding) String() string {
	return fmt.Sprintf("?%d=%s", b.Index, b.Type)
}
