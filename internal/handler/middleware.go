package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"haruup-service/internal/models"
	"haruup-service/internal/service"
	"haruup-service/internal/util"
)

const (
	MemberIDHeader   = "X-Member-ID"
	AdminTokenHeader = "X-Admin-Token"
)

type contextKey string

const memberIDKey contextKey = "member_id"

var (
	errMissingMember = errors.New("missing or invalid " + MemberIDHeader + " header")
	errAdminOnly     = errors.New("admin token required")
)

// RateLimitEnforcer counts one call against a member's daily quota.
type RateLimitEnforcer interface {
	Enforce(ctx context.Context, memberID uuid.UUID, feature string, dailyLimit int) (models.RateLimitResult, error)
}

// MemberFromContext returns the member set by MemberIdentity.
func MemberFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(memberIDKey).(uuid.UUID)
	return id, ok
}

// MemberIdentity reads the authenticated member from X-Member-ID, set by the gateway.
func MemberIdentity(logger *zap.Logger) func(http.Handler) http.Handler {
	h := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(r.Header.Get(MemberIDHeader))
			if err != nil || id == uuid.Nil {
				h.respondWithError(w, http.StatusUnauthorized, errMissingMember, "Member identity required")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), memberIDKey, id)))
		})
	}
}

// RateLimit enforces a per-member daily quota for feature. It must run after MemberIdentity.
func RateLimit(limiter RateLimitEnforcer, feature string, dailyLimit int, logger *zap.Logger) func(http.Handler) http.Handler {
	h := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			memberID, ok := MemberFromContext(r.Context())
			if !ok {
				h.respondWithError(w, http.StatusUnauthorized, errMissingMember, "Member identity required")
				return
			}

			result, err := limiter.Enforce(r.Context(), memberID, feature, dailyLimit)
			var exceeded *service.RateLimitExceededError
			switch {
			case errors.As(err, &exceeded):
				setRateLimitHeaders(w, result)
				w.Header().Set("Retry-After", strconv.FormatInt(exceeded.ResetAfterSeconds, 10))
				h.respondWithError(w, http.StatusTooManyRequests, err, "Daily limit reached")
				return
			case err != nil:
				h.respondWithError(w, getStatusCode(err), err, "Rate limiter unavailable")
				return
			}

			setRateLimitHeaders(w, result)
			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, result models.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining()))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAfterSeconds, 10))
}

// RequireAdmin checks X-Admin-Token against token. An empty token only passes outside production.
func RequireAdmin(token string, production bool, logger *zap.Logger) func(http.Handler) http.Handler {
	h := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				if production {
					h.respondWithError(w, http.StatusForbidden, errAdminOnly, "Admin API disabled")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(AdminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				h.respondWithError(w, http.StatusForbidden, errAdminOnly, "Admin token invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireHTTPS rejects any request that wasn't made over TLS
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired) // 426
			fmt.Fprint(w, `{"success":false,"error":"https required"}`)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
