// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package expr

import (
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"

	exprlang "github.com/expr-lang/expr"
	"github.com/google/uuid"
)

// Function is a builtin or plugin-registered scalar function (spec
// §4.2/§6.2). Determinism gates certain optimizations in the composer
//.
type Function struct {
	Name        string
	Deterministic bool
	Call        func(args ...any) (any, error)
}

// Registry holds the function and aggregation catalog consulted when
// compiling an Expression.
type Registry struct {
	functions    map[string]Function
	aggregations map[string]func() Aggregation
}

// NewRegistry builds a registry pre-populated with the builtin functions
// and aggregations named in spec §4.2, matching the behavior documented
// in the corresponding libtenzir/builtins/functions/*.cpp and
// libvast/builtins/aggregation-functions/*.cpp originals.
func NewRegistry() *Registry {
	r := &Registry{
		functions:    make(map[string]Function),
		aggregations: make(map[string]func() Aggregation),
	}
	r.registerBuiltins()
	r.registerBuiltinAggregations()
	return r
}

// Register adds or overrides a function, used by plugins.
func (r *Registry) Register(f Function) {
	r.functions[f.Name] = f
}

func (r *Registry) Lookup(name string) (Function, bool) {
	f, ok := r.functions[name]
	return f, ok
}

// hasFunction reports whether name is a registered function, used by
// normalizeMethodCalls to recognize `receiver.name(...)` as a call to a
// registered function rather than a plain nested field access.
func (r *Registry) hasFunction(name string) bool {
	_, ok := r.functions[name]
	return ok
}

// functionOptions turns the registry into expr-lang compile options, one
// expr.Function per registered builtin.
func (r *Registry) functionOptions() []exprlang.Option {
	opts := make([]exprlang.Option, 0, len(r.functions))
	for name, fn := range r.functions {
		fn := fn
		opts = append(opts, exprlang.Function(name, func(params ...any) (any, error) {
			return fn.Call(params...)
		}))
		_ = name
	}
	return opts
}

func (r *Registry) registerBuiltins() {
	r.Register(Function{Name: "int", Deterministic: true, Call: builtinInt})
	r.Register(Function{Name: "duration", Deterministic: true, Call: builtinDuration})
	r.Register(Function{Name: "subnet", Deterministic: true, Call: builtinSubnet})
	r.Register(Function{Name: "uuid", Deterministic: false, Call: builtinUUID})
	r.Register(Function{Name: "file_name", Deterministic: true, Call: builtinFileName})
	r.Register(Function{Name: "parent_dir", Deterministic: true, Call: builtinParentDir})
	r.Register(Function{Name: "starts_with", Deterministic: true, Call: builtinStartsWith})
	r.Register(Function{Name: "ends_with", Deterministic: true, Call: builtinEndsWith})
	r.Register(Function{Name: "prepend", Deterministic: true, Call: builtinPrepend})
	r.Register(Function{Name: "append", Deterministic: true, Call: builtinAppend})
	r.Register(Function{Name: "concatenate", Deterministic: true, Call: builtinConcatenate})
	r.Register(Function{Name: "ocsf_category_uid", Deterministic: true, Call: builtinOCSFCategoryUID})
	r.Register(Function{Name: "ocsf_class_uid", Deterministic: true, Call: builtinOCSFClassUID})
}

// builtinInt implements `int`: int64 passes through, int and float64 are
// converted (float64 truncates), strings are parsed, and anything else
// (or an unparsable string) fails the row (spec example scenario #2:
// `int("two")` -> null).
func builtinInt(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("int: expects exactly one argument")
	}
	switch v := args[0].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int: cannot parse %q", v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("int: unsupported argument type %T", v)
	}
}

func builtinDuration(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("duration: expects exactly one argument")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("duration: expects a string argument")
	}
	d, err := parseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("duration: %w", err)
	}
	return d.Nanoseconds(), nil
}

func builtinSubnet(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("subnet: expects exactly one argument")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("subnet: expects a string argument")
	}
	if !strings.Contains(s, "/") {
		return nil, fmt.Errorf("subnet: %q is not in CIDR notation", s)
	}
	_, network, err := net.ParseCIDR(s)
	if err != nil {
		return nil, fmt.Errorf("subnet: %w", err)
	}
	return network.String(), nil
}

func builtinUUID(args ...any) (any, error) {
	version := "v4"
	if len(args) == 1 {
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("uuid: version must be a string")
		}
		version = s
	}
	switch version {
	case "v1":
		id, err := uuid.NewUUID()
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case "v4":
		return uuid.NewString(), nil
	case "v6":
		id, err := uuid.NewV6()
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case "v7":
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case "nil":
		return uuid.Nil.String(), nil
	default:
		return nil, fmt.Errorf("uuid: unknown version %q", version)
	}
}

func builtinFileName(args ...any) (any, error) {
	s, err := stringArg("file_name", args)
	if err != nil {
		return nil, err
	}
	return path.Base(filepathToSlash(s)), nil
}

func builtinParentDir(args ...any) (any, error) {
	s, err := stringArg("parent_dir", args)
	if err != nil {
		return nil, err
	}
	return path.Dir(filepathToSlash(s)), nil
}

// filepathToSlash normalizes Windows separators, since the original
// notes the path kind is ambiguous between POSIX/Windows (see
// original_source's path.cpp TODOs, carried over as a documented
// limitation rather than solved generically).
func filepathToSlash(s string) string {
	return strings.ReplaceAll(s, "\\", "/")
}

func builtinStartsWith(args ...any) (any, error) {
	s, prefix, err := twoStringArgs("starts_with", args)
	if err != nil {
		return nil, err
	}
	return strings.HasPrefix(s, prefix), nil
}

func builtinEndsWith(args ...any) (any, error) {
	s, suffix, err := twoStringArgs("ends_with", args)
	if err != nil {
		return nil, err
	}
	return strings.HasSuffix(s, suffix), nil
}

func builtinPrepend(args ...any) (any, error) {
	s, prefix, err := twoStringArgs("prepend", args)
	if err != nil {
		return nil, err
	}
	return prefix + s, nil
}

func builtinAppend(args ...any) (any, error) {
	s, suffix, err := twoStringArgs("append", args)
	if err != nil {
		return nil, err
	}
	return s + suffix, nil
}

func builtinConcatenate(args ...any) (any, error) {
	var b strings.Builder
	for _, a := range args {
		s, ok := a.(string)
		if !ok {
			return nil, fmt.Errorf("concatenate: all arguments must be strings")
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// ocsfCategoryUIDs/ocsfClassUIDs are a small, representative slice of the
// OCSF taxonomy (https://schema.ocsf.io), enough to ground the function
// contract; a production deployment would load the full table from the
// catalog the way `ocsf_category_uid`/`ocsf_class_uid` load it from a
// bundled schema in the original.
var ocsfCategoryUIDs = map[string]int64{
	"system_activity": 1,
	"findings":        2,
	"iam":             3,
	"network_activity": 4,
	"discovery":       5,
	"application_activity": 6,
}

var ocsfClassUIDs = map[string]int64{
	"file_system_activity": 1001,
	"process_activity":     1007,
	"network_activity":     4001,
	"authentication":       3002,
	"detection_finding":    2004,
}

func builtinOCSFCategoryUID(args ...any) (any, error) {
	name, err := stringArg("ocsf_category_uid", args)
	if err != nil {
		return nil, err
	}
	uid, ok := ocsfCategoryUIDs[name]
	if !ok {
		return nil, fmt.Errorf("ocsf_category_uid: unknown category %q", name)
	}
	return uid, nil
}

func builtinOCSFClassUID(args ...any) (any, error) {
	name, err := stringArg("ocsf_class_uid", args)
	if err != nil {
		return nil, err
	}
	uid, ok := ocsfClassUIDs[name]
	if !ok {
		return nil, fmt.Errorf("ocsf_class_uid: unknown class %q", name)
	}
	return uid, nil
}

func stringArg(name string, args []any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s: expects exactly one argument", name)
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: expects a string argument", name)
	}
	return s, nil
}

func twoStringArgs(name string, args []any) (string, string, error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("%s: expects exactly two arguments", name)
	}
	a, ok1 := args[0].(string)
	b, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return "", "", fmt.Errorf("%s: expects two string arguments", name)
	}
	return a, b, nil
}
