package jailbridge

import "context"

// newRemoteMethod builds a Callable that, when invoked, packs its
// arguments, mints a resolve/reject promise pair, emits a "method"
// envelope, and blocks on the pair's promise for the reply — the Remote
// Stub Factory's method stub (component D), grounded on the reference
// implementation's _genRemoteMethod.
func (s *Session) newRemoteMethod(name string, pid *string) Callable {
	return NewCallable(func(args []any) (any, error) {
		argsEncoded, err := s.encodeArgs(args)
		if err != nil {
			return nil, err
		}
		promiseArgs, promise, err := s.encodePromisePair()
		if err != nil {
			return nil, err
		}
		env := Envelope{
			Type:    EnvMethod,
			Name:    name,
			PID:     pid,
			Args:    &Wrapped{Args: argsEncoded},
			Promise: &Wrapped{Args: promiseArgs},
		}
		if err := s.emitLocked(env); err != nil {
			return nil, WrapBridgeError(ErrTransportLost, "emitting method call", err)
		}
		return promise.Wait(context.Background())
	})
}

// newRemoteCallback builds a Callable bound to a Reference Store id on the
// peer side. withPromise controls whether the call waits for a reply:
// callbacks invoked as a plain side effect (the common case) fire and
// return immediately, while a callback invoked as a method's continuation
// round-trips through a promise pair like a method stub does.
func (s *Session) newRemoteCallback(num uint64, withPromise bool) Callable {
	return NewCallable(func(args []any) (any, error) {
		argsEncoded, err := s.encodeArgs(args)
		if err != nil {
			return nil, err
		}
		env := Envelope{Type: EnvCallback, Num: &num, Args: &Wrapped{Args: argsEncoded}}
		if !withPromise {
			if err := s.emitLocked(env); err != nil {
				return nil, WrapBridgeError(ErrTransportLost, "emitting callback", err)
			}
			return nil, nil
		}
		promiseArgs, promise, err := s.encodePromisePair()
		if err != nil {
			return nil, err
		}
		env.Promise = &Wrapped{Args: promiseArgs}
		if err := s.emitLocked(env); err != nil {
			return nil, WrapBridgeError(ErrTransportLost, "emitting callback", err)
		}
		return promise.Wait(context.Background())
	})
}

func (s *Session) encodePromisePair() (Encoded, *Promise, error) {
	promise, resolve, reject := NewPromisePair()
	resolveEnc, err := s.Encode(resolve)
	if err != nil {
		return Encoded{}, nil, err
	}
	rejectEnc, err := s.Encode(reject)
	if err != nil {
		return Encoded{}, nil, err
	}
	return Encoded{Array: []Encoded{resolveEnc, rejectEnc}}, promise, nil
}

// BuildRemoteInterface renders the peer's exported API from a setInterface
// envelope's slots into a namespace of callables and primitives, and
// records it on the session so repeated resolution of the same name
// reuses one stub rather than minting a fresh one per lookup.
func (s *Session) BuildRemoteInterface(slots []InterfaceSlot) map[string]any {
	out := make(map[string]any, len(slots))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range slots {
		switch data := slot.Data.(type) {
		case nil:
			stub := s.newRemoteMethod(slot.Name, nil)
			s.remote[slot.Name] = remoteEntry{stub: stub}
			out[slot.Name] = stub
		case map[string]any:
			nested := make(map[string]any, len(data))
			for key, v := range data {
				if name, ok := asFunctionSentinel(v); ok {
					nested[key] = s.newRemoteMethod(slot.Name+"."+name, nil)
					continue
				}
				nested[key] = v
			}
			s.remote[slot.Name] = remoteEntry{value: nested}
			out[slot.Name] = nested
		default:
			s.remote[slot.Name] = remoteEntry{value: data}
			out[slot.Name] = data
		}
	}
	return out
}

// RemoteNamed resolves a previously-built remote interface member by its
// top-level name.
func (s *Session) RemoteNamed(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.remote[name]
	if !ok {
		return nil, false
	}
	if entry.stub != nil {
		return entry.stub, true
	}
	return entry.value, true
}

// LookupPluginMember resolves a Callable previously registered under a
// PluginAPI's id, for dispatching an inbound "method" envelope that
// carries a pid.
func (s *Session) LookupPluginMember(pid, name string) (Callable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.pluginInterfaces[pid]
	if !ok {
		return nil, false
	}
	c, ok := table[name]
	return c, ok
}

func asFunctionSentinel(v any) (string, bool) {
	str, ok := v.(string)
	if !ok || len(str) <= len(FunctionSentinelPrefix) {
		return "", false
	}
	if str[:len(FunctionSentinelPrefix)] != FunctionSentinelPrefix {
		return "", false
	}
	return str[len(FunctionSentinelPrefix):], true
}
