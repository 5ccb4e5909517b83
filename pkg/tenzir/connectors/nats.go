// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package connectors

import (
	"context"
	"fmt"

	natsgo "github.com/nats-io/nats.go"
	"github.com/tenzir/pipeline-core/pkg/nats"
)

// NATS is the `load nats://subject` connector: it subscribes to subject
// on the node's shared NATS client (pkg/nats, the teacher's own
// singleton wrapper) and exposes each received message payload as one
// byte chunk.
type NATS struct {
	Client  *nats.Client
	Subject string
	Queue   string // optional queue-group name for load balancing
}

func (n NATS) Open(ctrl Ctrl) (ByteChunks, error) {
	if n.Client == nil {
		return nil, fmt.Errorf("invalid_configuration: nats connector: no client configured")
	}
	ch := make(chan *natsgo.Msg, 256)
	if n.Queue != "" {
		err := n.Client.SubscribeQueue(n.Subject, n.Queue, func(subject string, data []byte) {
			ch <- &natsgo.Msg{Subject: subject, Data: data}
		})
		if err != nil {
			return nil, fmt.Errorf("io_error: nats connector: subscribe %q (queue %q): %w", n.Subject, n.Queue, err)
		}
		return natsChunks{ch: ch}, nil
	}
	if err := n.Client.SubscribeChan(n.Subject, ch); err != nil {
		return nil, fmt.Errorf("io_error: nats connector: subscribe %q: %w", n.Subject, err)
	}
	return natsChunks{ch: ch}, nil
}

type natsChunks struct {
	ch chan *natsgo.Msg
}

func (n natsChunks) Next(ctx context.Context) ([]byte, bool, error) {
	select {
	case msg, ok := <-n.ch:
		if !ok {
			return nil, false, nil
		}
		return msg.Data, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// NATSSaver is the `save nats://subject` connector: each chunk is
// published as one NATS message to Subject.
type NATSSaver struct {
	Client  *nats.Client
	Subject string
}

func (n NATSSaver) Open(ctrl Ctrl) (func(chunk []byte) error, error) {
	if n.Client == nil {
		return nil, fmt.Errorf("invalid_configuration: nats connector: no client configured")
	}
	return func(chunk []byte) error {
		if chunk == nil {
			return nil
		}
		if err := n.Client.Publish(n.Subject, chunk); err != nil {
			return fmt.Errorf("io_error: nats connector: publish %q: %w", n.Subject, err)
		}
		return nil
	}, nil
}
