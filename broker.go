// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package ltq

import (
	"fmt"
	"net/url"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tclesius/ltq/broker"
	"github.com/tclesius/ltq/internal/base"
	"github.com/tclesius/ltq/internal/errors"
)

// Broker is the contract a Worker and App consume (spec §4.1,
// "[BROKER]"). It is an alias of base.Broker so callers outside this
// module never need to import the internal package directly.
type Broker = base.Broker

// NewRedisBroker returns a Broker backed by a Redis client built from opt.
func NewRedisBroker(opt *goredis.Options) Broker {
	return broker.NewRedis(opt)
}

// NewRedisBrokerFromClient returns a Broker wrapping an already-constructed
// redis.UniversalClient (e.g. a cluster or failover client the caller
// configured directly).
func NewRedisBrokerFromClient(client goredis.UniversalClient) Broker {
	return broker.NewRedisFromClient(client)
}

// NewMemoryBroker returns a single-process, in-memory Broker, useful for
// tests and local development (spec §4.1, "Memory broker").
func NewMemoryBroker() Broker {
	return broker.NewMemory()
}

// BrokerFromURL builds a Broker from a connection URL, dispatching on
// scheme (spec §6, "Broker URL scheme"):
//
//	redis://[:password@]host:port[/db]
//	rediss://...                          (same, over TLS)
//	memory://                             (in-process, for local/dev use)
func BrokerFromURL(rawURL string) (Broker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.E(errors.InvalidArgument, fmt.Sprintf("invalid broker url: %v", err), err)
	}

	switch strings.ToLower(u.Scheme) {
	case "redis", "rediss":
		opt, err := goredis.ParseURL(rawURL)
		if err != nil {
			return nil, errors.E(errors.InvalidArgument, fmt.Sprintf("invalid redis url: %v", err), err)
		}
		return broker.NewRedis(opt), nil
	case "memory":
		return broker.NewMemory(), nil
	default:
		return nil, errors.E(errors.InvalidArgument, fmt.Sprintf("unsupported broker scheme %q", u.Scheme))
	}
}
