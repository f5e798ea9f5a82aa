// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

// Package mgrpc is the connection layer behind the RPC Client Pool
// (spec §4.7): per-target pooled gRPC connections, bearer-token metadata
// injection, and a GRPC_HEALTH_CHECK_TIMEOUT reader. It holds no
// health-check client.
package mgrpc

import (
	"context"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const defaultHealthCheckTimeout = 5 * time.Second

// GRPCConnection wraps a pooled *grpc.ClientConn for one target service.
type GRPCConnection struct {
	Target string
	Conn   *grpc.ClientConn
}

// getHealthCheckTimeout reads GRPC_HEALTH_CHECK_TIMEOUT as a
// time.ParseDuration string, falling back to defaultHealthCheckTimeout for
// an empty, unparsable, zero, or negative value.
func getHealthCheckTimeout() time.Duration {
	raw := os.Getenv("GRPC_HEALTH_CHECK_TIMEOUT")
	if raw == "" {
		return defaultHealthCheckTimeout
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultHealthCheckTimeout
	}

	return d
}

// ContextMetadataInjection attaches token as the outgoing "authorization"
// metadata value, preserving any metadata already present on ctx. A blank
// (or whitespace-only) token is a no-op: ctx is returned unchanged.
func (c *GRPCConnection) ContextMetadataInjection(ctx context.Context, token string) context.Context {
	if strings.TrimSpace(token) == "" {
		return ctx
	}

	return metadata.AppendToOutgoingContext(ctx, "authorization", token)
}
