// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/accounts/internal/api"
	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/logging"
)

// CookieName is the session cookie.
const CookieName = "token"

var statusByKind = map[string]int{
	string(auth.KindInvalidInput):       http.StatusBadRequest,
	string(auth.KindDuplicateAccount):   http.StatusConflict,
	string(auth.KindUnknownAccount):     http.StatusNotFound,
	string(auth.KindBadCredential):      http.StatusUnauthorized,
	string(auth.KindInvalidOTP):         http.StatusBadRequest,
	string(auth.KindOTPExpired):         http.StatusBadRequest,
	string(auth.KindAlreadyVerified):    http.StatusConflict,
	string(auth.KindInvalidToken):       http.StatusUnauthorized,
	string(auth.KindNotificationFailed): http.StatusBadGateway,
	string(auth.KindStoreUnavailable):   http.StatusServiceUnavailable,
}

func statusFor(res api.Result) int {
	if res.Success {
		return http.StatusOK
	}
	if status, ok := statusByKind[res.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.ops.Register(r.Context(), req)
	s.setSessionCookie(w, res)
	status := statusFor(res)
	if res.Success {
		status = http.StatusCreated
	}
	s.write(w, r, status, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.ops.Login(r.Context(), req)
	s.setSessionCookie(w, res)
	s.write(w, r, statusFor(res), res)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	res := s.ops.Logout(r.Context(), api.SessionRequest{Token: sessionToken(r)})
	s.clearSessionCookie(w)
	s.write(w, r, statusFor(res), res)
}

func (s *Server) handleSendVerifyOTP(w http.ResponseWriter, r *http.Request) {
	res := s.ops.SendVerifyOTP(r.Context(), api.SessionRequest{Token: sessionToken(r)})
	s.write(w, r, statusFor(res), res)
}

func (s *Server) handleVerifyAccount(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Token = sessionToken(r)
	res := s.ops.VerifyAccount(r.Context(), req)
	s.write(w, r, statusFor(res), res)
}

func (s *Server) handleIsAuth(w http.ResponseWriter, r *http.Request) {
	res := s.ops.IsAuthenticated(r.Context(), api.SessionRequest{Token: sessionToken(r)})
	s.write(w, r, statusFor(res), res)
}

func (s *Server) handleSendResetOTP(w http.ResponseWriter, r *http.Request) {
	var req api.ResetOTPRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.ops.SendResetOTP(r.Context(), req)
	s.write(w, r, statusFor(res), res)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req api.ResetPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.ops.ResetPassword(r.Context(), req)
	s.write(w, r, statusFor(res), res)
}

func (s *Server) handleUserData(w http.ResponseWriter, r *http.Request) {
	res := s.ops.UserData(r.Context(), api.SessionRequest{Token: sessionToken(r)})
	s.write(w, r, statusFor(res), res)
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		msg := "Invalid request body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "Request body too large"
		}
		s.write(w, r, http.StatusBadRequest, api.Result{
			Message: msg,
			Kind:    string(auth.KindInvalidInput),
		})
		return false
	}
	return true
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, status int, res api.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.WarnContext(r.Context(), "write response", "error", err)
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, res api.Result) {
	data, ok := res.Data.(api.SessionData)
	if !res.Success || !ok || data.Token == "" {
		return
	}
	http.SetCookie(w, s.cookie(data.Token, data.ExpiresAt))
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	c := s.cookie("", time.Unix(0, 0))
	c.MaxAge = -1
	http.SetCookie(w, c)
}

func (s *Server) cookie(value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	if s.cfg.SecureCookies {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

// sessionToken returns the cookie token, or the bearer token if no cookie is set.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests tags each request with an id and logs its completion.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := ulid.Make().String()
		ctx := logging.WithAttrs(r.Context(), slog.String("request_id", requestID))
		w.Header().Set("X-Request-Id", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.logger.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
