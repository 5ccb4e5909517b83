// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tenzir/pipeline-core/pkg/tenzir/codec"
	"github.com/tenzir/pipeline-core/pkg/tenzir/connectors"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/operators"
	"github.com/tenzir/pipeline-core/pkg/tenzir/tql"
)

func registerIOPlugins(r *Registry) {
	r.Register("load", parseLoad)
	r.Register("save", parseSave)
	r.Register("parse", parseParse)
	r.Register("print", parsePrint)
}

func parseLoad(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	uri := b.String()
	if err := b.Err(); err != nil {
		return nil, err
	}
	loader, err := resolveLoader(uri, env)
	if err != nil {
		return nil, err
	}
	load := operators.NewLoad(loader)
	load.Injector = env.Injector
	return load, nil
}

func parseSave(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	uri := b.String()
	if err := b.Err(); err != nil {
		return nil, err
	}
	saver, err := resolveSaver(uri, env)
	if err != nil {
		return nil, err
	}
	return operators.NewSave(saver), nil
}

func parseParse(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	format := b.String()
	schema := b.NamedString("schema", "tenzir.parsed")
	if err := b.Err(); err != nil {
		return nil, err
	}
	c, err := resolveCodec(format)
	if err != nil {
		return nil, err
	}
	return operators.NewParse(c, schema), nil
}

func parsePrint(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	format := b.String()
	if err := b.Err(); err != nil {
		return nil, err
	}
	c, err := resolveCodec(format)
	if err != nil {
		return nil, err
	}
	return operators.NewPrint(c), nil
}

// resolveLoader maps a connector URI (spec §1's `load stdin`, `load
// file://...`, `load s3://...`, `load nats://...`) onto a concrete
// connectors.Loader.
func resolveLoader(raw string, env *Env) (connectors.Loader, error) {
	if raw == "stdin" {
		return connectors.Stdin{}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid_argument: load: %w", err)
	}
	switch u.Scheme {
	case "file", "":
		return connectors.File{Path: withPath(u, raw)}, nil
	case "s3":
		return connectors.S3Loader{Config: connectors.S3Config{Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}}, nil
	case "nats":
		if env.NATS == nil {
			return nil, fmt.Errorf("invalid_configuration: load: nats connector requires a configured NATS client")
		}
		return connectors.NATS{Client: env.NATS, Subject: u.Host + u.Path}, nil
	default:
		return nil, fmt.Errorf("invalid_argument: load: unsupported scheme %q", u.Scheme)
	}
}

// resolveSaver is resolveLoader's saver-side counterpart.
func resolveSaver(raw string, env *Env) (connectors.Saver, error) {
	if raw == "stdout" {
		return connectors.Stdout{}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid_argument: save: %w", err)
	}
	switch u.Scheme {
	case "file", "":
		return connectors.FileSaver{Path: withPath(u, raw)}, nil
	case "s3":
		return &connectors.S3Saver{Config: connectors.S3Config{Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}}, nil
	case "nats":
		if env.NATS == nil {
			return nil, fmt.Errorf("invalid_configuration: save: nats connector requires a configured NATS client")
		}
		return connectors.NATSSaver{Client: env.NATS, Subject: u.Host + u.Path}, nil
	default:
		return nil, fmt.Errorf("invalid_argument: save: unsupported scheme %q", u.Scheme)
	}
}

// withPath returns a file connector's path: either the URI's combined
// host+path (for `file://relative/path`) or the raw string unparsed (for
// a bare `/abs/path` with no scheme at all).
func withPath(u *url.URL, raw string) string {
	if u.Scheme == "" {
		return raw
	}
	return u.Host + u.Path
}

func resolveCodec(format string) (interface {
	codec.Parser
	codec.Printer
}, error) {
	switch strings.ToLower(format) {
	case "ndjson", "json":
		return codec.NDJSON{}, nil
	case "avro":
		return codec.Avro{}, nil
	case "influx", "line-protocol", "lineprotocol":
		return codec.InfluxLineProtocol{}, nil
	default:
		return nil, fmt.Errorf("invalid_argument: unsupported format %q", format)
	}
}
