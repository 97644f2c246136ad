// Package bridge drives SQLite connections and statements on behalf of
// caller-owned objects.
//
// A caller object holds its native handle in an exported field and exposes
// methods the bridge calls back into: an error method for failures and,
// for connections that run Exec, a row method. Operations never return Go
// errors for engine failures; they return the engine's status and route the
// message through the owner's error method.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx/reflectx"
)

// Config configures a Registry.
type Config struct {
	Logger *slog.Logger
}

// Class describes how the bridge reaches into one caller-owned type.
type Class struct {
	// Type is the pointer type of owner objects.
	Type reflect.Type
	// HandleField is the bridge tag (or lower-cased name) of the Handle field.
	HandleField string
	// ErrorMethod takes (api string, code int, message string).
	ErrorMethod string
	// DetailErrorMethod takes (api string, code int, message, detail string).
	// Only statements use it.
	DetailErrorMethod string
	// RowMethod takes (values, columns []string) and returns false to abort.
	// Only connections running Exec use it.
	RowMethod string
}

// ClassOf returns the Class of v with the default member names.
func ClassOf(v any) Class {
	return Class{
		Type:              reflect.TypeOf(v),
		HandleField:       "handle",
		ErrorMethod:       "ReportError",
		DetailErrorMethod: "ReportErrorDetail",
		RowMethod:         "OnRow",
	}
}

// class is the resolved form of a Class. Unresolved members stay nil or -1
// and the operations needing them fail with the matching sentinel.
type class struct {
	typ          reflect.Type
	handle       []int
	signed       bool
	report       int
	reportDetail int
	onRow        int
}

// Registry is the context every bridge operation runs in. It caches the
// resolved caller classes and owns the handle arena.
type Registry struct {
	logger *slog.Logger
	mapper *reflectx.Mapper
	arena  arena

	mu     sync.RWMutex
	conns  map[reflect.Type]*class
	stmts  map[reflect.Type]*class
	closed bool
}

func NewRegistry(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		mapper: reflectx.NewMapperFunc("bridge", strings.ToLower),
		conns:  make(map[reflect.Type]*class),
		stmts:  make(map[reflect.Type]*class),
	}
}

var (
	stringType  = reflect.TypeOf("")
	intType     = reflect.TypeOf(0)
	boolType    = reflect.TypeOf(false)
	stringsType = reflect.TypeOf([]string(nil))
)

// InitConnectionClass resolves and caches the members the bridge uses on
// connection owners of c.Type, replacing any earlier resolution. The
// returned error lists every member that could not be resolved; the class
// is cached regardless.
func (r *Registry) InitConnectionClass(c Class) error {
	if r == nil {
		return ErrNoRegistry
	}
	cls, err := r.resolve(c, false)
	if cls == nil {
		return err
	}
	r.mu.Lock()
	r.conns[cls.typ] = cls
	r.mu.Unlock()
	r.logger.Debug("Connection class initialized", "type", cls.typ.String(), "error", err)
	return err
}

// InitStatementClass is InitConnectionClass for statement owners.
func (r *Registry) InitStatementClass(c Class) error {
	if r == nil {
		return ErrNoRegistry
	}
	cls, err := r.resolve(c, true)
	if cls == nil {
		return err
	}
	r.mu.Lock()
	r.stmts[cls.typ] = cls
	r.mu.Unlock()
	r.logger.Debug("Statement class initialized", "type", cls.typ.String(), "error", err)
	return err
}

func (r *Registry) resolve(c Class, statement bool) (*class, error) {
	t := c.Type
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("bridge: owner type %v must be a pointer to a struct", t)
	}
	cls := &class{typ: t, report: -1, reportDetail: -1, onRow: -1}
	var errs []error

	if fi := r.mapper.TypeMap(t.Elem()).GetByPath(c.HandleField); fi != nil {
		switch fi.Field.Type.Kind() {
		case reflect.Uint64:
			cls.handle = fi.Index
		case reflect.Int64:
			cls.handle = fi.Index
			cls.signed = true
		default:
			errs = append(errs, fmt.Errorf("%w: %s.%s has type %s", ErrNoHandleField, t.Elem().Name(), fi.Field.Name, fi.Field.Type))
		}
	} else {
		errs = append(errs, fmt.Errorf("%w: %q on %s", ErrNoHandleField, c.HandleField, t))
	}

	var ok bool
	if cls.report, ok = method(t, c.ErrorMethod, []reflect.Type{stringType, intType, stringType}, nil); !ok {
		errs = append(errs, fmt.Errorf("%w: %s.%s(string, int, string)", ErrNoErrorMethod, t, c.ErrorMethod))
	}
	if statement {
		if cls.reportDetail, ok = method(t, c.DetailErrorMethod, []reflect.Type{stringType, intType, stringType, stringType}, nil); !ok {
			errs = append(errs, fmt.Errorf("%w: %s.%s(string, int, string, string)", ErrNoDetailMethod, t, c.DetailErrorMethod))
		}
	} else if c.RowMethod != "" {
		// The row method is optional until Exec needs it.
		cls.onRow, _ = method(t, c.RowMethod, []reflect.Type{stringsType, stringsType}, []reflect.Type{boolType})
	}
	return cls, errors.Join(errs...)
}

// method returns the index of t's method name when its signature matches.
func method(t reflect.Type, name string, in, out []reflect.Type) (int, bool) {
	m, ok := t.MethodByName(name)
	if !ok {
		return -1, false
	}
	want := reflect.FuncOf(append([]reflect.Type{t}, in...), out, false)
	if m.Type != want {
		return -1, false
	}
	return m.Index, true
}

// owner is a caller object resolved against its class.
type owner struct {
	cls *class
	v   reflect.Value
}

func (r *Registry) owner(o any, statement bool) (owner, int) {
	if r == nil {
		return owner{}, StatusNoRegistry
	}
	v := reflect.ValueOf(o)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() {
		return owner{}, StatusClassNotRegistered
	}

	r.mu.RLock()
	table := r.conns
	if statement {
		table = r.stmts
	}
	cls := table[v.Type()]
	r.mu.RUnlock()

	switch {
	case cls == nil:
		return owner{}, StatusClassNotRegistered
	case cls.handle == nil:
		return owner{}, StatusNoHandleField
	case cls.report < 0:
		return owner{}, StatusNoErrorMethod
	case statement && cls.reportDetail < 0:
		return owner{}, StatusNoDetailMethod
	}
	return owner{cls: cls, v: v}, StatusOK
}

func (o owner) handle() Handle {
	f := reflectx.FieldByIndexesReadOnly(o.v, o.cls.handle)
	if o.cls.signed {
		return Handle(f.Int())
	}
	return Handle(f.Uint())
}

func (o owner) setHandle(h Handle) {
	f := reflectx.FieldByIndexes(o.v, o.cls.handle)
	if o.cls.signed {
		f.SetInt(int64(h))
		return
	}
	f.SetUint(uint64(h))
}

func (o owner) report(api string, code int, message string) {
	o.v.Method(o.cls.report).Call([]reflect.Value{
		reflect.ValueOf(api), reflect.ValueOf(code), reflect.ValueOf(message),
	})
}

func (o owner) reportDetail(api string, code int, message, detail string) {
	o.v.Method(o.cls.reportDetail).Call([]reflect.Value{
		reflect.ValueOf(api), reflect.ValueOf(code), reflect.ValueOf(message), reflect.ValueOf(detail),
	})
}

func (o owner) hasRowMethod() bool {
	return o.cls.onRow >= 0
}

func (o owner) onRow(values, columns []string) bool {
	out := o.v.Method(o.cls.onRow).Call([]reflect.Value{
		reflect.ValueOf(values), reflect.ValueOf(columns),
	})
	return out[0].Bool()
}

// Stats counts what the registry currently holds.
type Stats struct {
	Connections int
	Statements  int
	Classes     int
}

func (r *Registry) Stats() Stats {
	if r == nil {
		return Stats{}
	}
	r.mu.RLock()
	classes := len(r.conns) + len(r.stmts)
	r.mu.RUnlock()
	return Stats{
		Connections: len(r.arena.live(kindConn)),
		Statements:  len(r.arena.live(kindStmt)),
		Classes:     classes,
	}
}

// Shutdown finalizes every statement and closes every connection still
// held by the registry. Owner objects keep their now stale handles, which no
// longer resolve. Opening after Shutdown fails.
func (r *Registry) Shutdown() error {
	if r == nil {
		return ErrNoRegistry
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for _, h := range r.arena.live(kindStmt) {
		if s, ok := r.arena.release(h, kindStmt); ok {
			if rc := finalize(s); rc != StatusOK {
				errs = append(errs, &Error{API: "finalize", Code: rc, Message: "finalize failed during registry close"})
			}
		}
	}
	for _, h := range r.arena.live(kindConn) {
		s, ok := r.arena.get(h, kindConn)
		if !ok {
			continue
		}
		if rc := closeConn(s); rc != StatusOK {
			errs = append(errs, &Error{API: "close", Code: rc, Message: "close failed during registry close"})
			continue
		}
		r.arena.release(h, kindConn)
	}
	r.logger.Debug("Registry shut down", "errors", len(errs))
	return errors.Join(errs...)
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
