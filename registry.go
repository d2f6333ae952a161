package jailbridge

import (
	"reflect"
	"strings"
)

// FunctionSentinelPrefix is the marker send_interface substitutes for a
// callable nested inside a primitive/callable map slot.
const FunctionSentinelPrefix = "**@@FUNCTION@@**:"

// APIEntry is one named member of an exported interface: a Callable, a
// primitive (string, bool, any integer/float kind), or a shallow map of
// primitives and Callables. Using an explicit ordered slice — rather than a
// Go map, whose iteration order is randomized — is how this package
// honors "object keys are emitted in iteration order" for the one call
// site (send_interface) where that order is externally observable.
type APIEntry struct {
	Name  string
	Value any
}

// Registry is the Interface Registry (component E): it holds the locally
// exported API, enforces the "_"-prefixed visibility rule, installs the
// exit/default_exit composition, and renders the setInterface descriptor.
type Registry struct {
	entries     []APIEntry
	logger      SLogger
	defaultExit func()
	emit        func(Envelope) error
}

// NewRegistry builds an empty Registry. defaultExit is invoked by the
// installed "exit" wrapper after any user-supplied exit hook runs (or
// panics/errors); emit sends the resulting setInterface envelope.
func NewRegistry(logger SLogger, defaultExit func(), emit func(Envelope) error) *Registry {
	if logger == nil {
		logger = DefaultSLogger()
	}
	return &Registry{logger: logger, defaultExit: defaultExit, emit: emit}
}

// SetInterface accepts either an ordered []APIEntry or a struct (snapshot
// of its exported fields, in declaration order — the Go analogue of
// "an object whose public attribute set is snapshotted into a mapping").
// Names starting with "_" are hidden. Exactly one "exit" slot survives:
// a user-supplied one is wrapped so default_exit always runs after it; if
// none is supplied, default_exit is installed directly.
func (r *Registry) SetInterface(api any) error {
	entries, err := toAPIEntries(api)
	if err != nil {
		return err
	}

	visible := entries[:0:0]
	for _, e := range entries {
		if strings.HasPrefix(e.Name, "_") {
			continue
		}
		visible = append(visible, e)
	}

	userExit, hasExit := findEntry(visible, "exit")
	exitFn := NewCallable(func(args []any) (any, error) {
		defer r.defaultExit()
		if hasExit {
			if exitCallable, ok := userExit.Value.(Callable); ok {
				return exitCallable.Call(args)
			}
		}
		return nil, nil
	})
	if hasExit {
		for i, e := range visible {
			if e.Name == "exit" {
				visible[i].Value = exitFn
			}
		}
	} else {
		visible = append(visible, APIEntry{Name: "exit", Value: exitFn})
	}

	r.entries = visible
	return r.SendInterface()
}

// NameFor reports the exported name of c, if it is one of the currently
// exported callables — the identity-equality lookup the codec performs
// before minting a fresh Reference Store entry.
func (r *Registry) NameFor(c Callable) (string, bool) {
	for _, e := range r.entries {
		if ec, ok := e.Value.(Callable); ok && ec == c {
			return e.Name, true
		}
	}
	return "", false
}

// Lookup resolves an exported member by name.
func (r *Registry) Lookup(name string) (any, bool) {
	for _, e := range r.entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

// Exit returns the installed exit Callable (always present once
// SetInterface has run).
func (r *Registry) Exit() (Callable, bool) {
	v, ok := r.Lookup("exit")
	if !ok {
		return nil, false
	}
	c, ok := v.(Callable)
	return c, ok
}

// SendInterface renders and emits the current interface as a setInterface
// envelope.
func (r *Registry) SendInterface() error {
	slots := make([]InterfaceSlot, 0, len(r.entries))
	for _, e := range r.entries {
		switch v := e.Value.(type) {
		case Callable:
			slots = append(slots, InterfaceSlot{Name: e.Name, Data: nil})
		case map[string]any:
			data := make(map[string]any, len(v))
			for k, mv := range v {
				if c, ok := mv.(Callable); ok {
					_ = c
					data[k] = FunctionSentinelPrefix + k
				} else if isPrimitive(mv) {
					data[k] = mv
				}
			}
			slots = append(slots, InterfaceSlot{Name: e.Name, Data: data})
		default:
			if isPrimitive(v) {
				slots = append(slots, InterfaceSlot{Name: e.Name, Data: v})
			}
			// anything else (deeper nesting) is silently not transmitted.
		}
	}
	if r.emit == nil {
		return nil
	}
	return r.emit(Envelope{Type: EnvSetInterface, API: slots})
}

func findEntry(entries []APIEntry, name string) (APIEntry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return APIEntry{}, false
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func toAPIEntries(api any) ([]APIEntry, error) {
	switch v := api.(type) {
	case []APIEntry:
		return append([]APIEntry(nil), v...), nil
	case map[string]any:
		// Accepted for convenience, but map iteration order is undefined;
		// callers that care about wire order should pass []APIEntry.
		entries := make([]APIEntry, 0, len(v))
		for k, val := range v {
			entries = append(entries, APIEntry{Name: k, Value: val})
		}
		return entries, nil
	}

	rv := reflect.ValueOf(api)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, NewBridgeError(ErrAPIShape, "unsupported api export: nil pointer")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, NewBridgeError(ErrAPIShape, "unsupported api export")
	}
	rt := rv.Type()
	entries := make([]APIEntry, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		entries = append(entries, APIEntry{Name: field.Name, Value: rv.Field(i).Interface()})
	}
	return entries, nil
}
