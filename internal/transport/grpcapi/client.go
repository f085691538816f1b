// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package grpcapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/holomush/accounts/internal/api"
)

// ClientConfig holds configuration for the gRPC client.
type ClientConfig struct {
	// Address is the target server address (e.g., "localhost:9090").
	Address string

	// TLSConfig enables TLS. If nil, an insecure connection is used.
	TLSConfig *tls.Config

	// KeepaliveTime is how often to ping the server (default: 10s)
	KeepaliveTime time.Duration

	// KeepaliveTimeout is how long to wait for ping response (default: 5s)
	KeepaliveTimeout time.Duration
}

// Client calls accounts.v1.Accounts.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a client. The connection is established lazily.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Address == "" {
		return nil, oops.Errorf("address is required")
	}
	if cfg.KeepaliveTime == 0 {
		cfg.KeepaliveTime = 10 * time.Second
	}
	if cfg.KeepaliveTimeout == 0 {
		cfg.KeepaliveTimeout = 5 * time.Second
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
	}
	if cfg.TLSConfig != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(cfg.TLSConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, oops.With("address", cfg.Address).Wrapf(err, "create grpc client")
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return oops.Wrapf(err, "close grpc client")
	}
	return nil
}

// Call invokes method with req encoded as a Struct. A non-empty token is sent
// as authorization metadata. Domain failures come back in the Result; the
// error is reserved for transport and encoding failures.
func (c *Client) Call(ctx context.Context, method, token string, req any) (api.Result, error) {
	in, err := toStruct(req)
	if err != nil {
		return api.Result{}, oops.With("method", method).Wrapf(err, "encode request")
	}
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, AuthorizationKey, "Bearer "+token)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return api.Result{}, oops.With("method", method).Wrap(err)
	}

	var res api.Result
	raw, err := json.Marshal(out.AsMap())
	if err != nil {
		return api.Result{}, oops.With("method", method).Wrapf(err, "decode response")
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return api.Result{}, oops.With("method", method).Wrapf(err, "decode response")
	}
	return res, nil
}

func toStruct(req any) (*structpb.Struct, error) {
	if req == nil {
		return &structpb.Struct{}, nil
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}
