// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package grpcapi exposes the account operations as the gRPC service
// accounts.v1.Accounts.
//
// Requests and responses are google.protobuf.Struct messages whose fields
// mirror the JSON bodies of the HTTP transport. The session token travels in
// the "authorization" metadata key, with or without a "Bearer " prefix.
// Domain failures are reported inside the response with status OK; only
// malformed requests produce a non-OK status.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "accounts.v1.Accounts"

// Method names.
const (
	MethodRegister        = "Register"
	MethodLogin           = "Login"
	MethodLogout          = "Logout"
	MethodIsAuthenticated = "IsAuthenticated"
	MethodUserData        = "UserData"
	MethodSendVerifyOTP   = "SendVerifyOtp"
	MethodVerifyAccount   = "VerifyAccount"
	MethodSendResetOTP    = "SendResetOtp"
	MethodResetPassword   = "ResetPassword"
)

// FullMethod returns the wire path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// accountsService is implemented by *Server and registered under ServiceName.
type accountsService interface {
	Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Logout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	IsAuthenticated(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	UserData(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	SendVerifyOTP(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	VerifyAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	SendResetOTP(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ResetPassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(srv accountsService, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(accountsService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(accountsService), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*accountsService)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodRegister, accountsService.Register),
		unary(MethodLogin, accountsService.Login),
		unary(MethodLogout, accountsService.Logout),
		unary(MethodIsAuthenticated, accountsService.IsAuthenticated),
		unary(MethodUserData, accountsService.UserData),
		unary(MethodSendVerifyOTP, accountsService.SendVerifyOTP),
		unary(MethodVerifyAccount, accountsService.VerifyAccount),
		unary(MethodSendResetOTP, accountsService.SendResetOTP),
		unary(MethodResetPassword, accountsService.ResetPassword),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "accounts/v1/accounts.proto",
}
