package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"sentinel.app/relay/common/logger"
	"sentinel.app/relay/internal/http/middleware"
	"sentinel.app/relay/internal/service/identity"
	"sentinel.app/relay/internal/service/ratelimit"
)

type stubAuthenticator struct {
	caller string
	err    error
	header string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, header string) (string, error) {
	s.header = header
	return s.caller, s.err
}

type stubLimiter struct {
	keys []string
	err  error
}

func (s *stubLimiter) Allow(_ context.Context, key string) error {
	s.keys = append(s.keys, key)
	return s.err
}

func serve(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/a2a/execute", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

var _ = Describe("Middleware", func() {
	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
	})

	Describe("RequireCaller", func() {
		var (
			auth       *stubAuthenticator
			router     *gin.Engine
			seenCaller string
			seenFields logger.LogFields
		)

		BeforeEach(func() {
			auth = &stubAuthenticator{caller: "svc@proj.iam.gserviceaccount.com"}
			router = gin.New()
			router.POST("/a2a/execute", middleware.RequireCaller(auth), func(c *gin.Context) {
				seenCaller = middleware.GetCaller(c.Request.Context())
				seenFields = logger.GetLogFields(c.Request.Context())
				c.Status(http.StatusOK)
			})
		})

		It("attaches the caller to the request", func() {
			w := serve(router, "Bearer tok")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(auth.header).To(Equal("Bearer tok"))
			Expect(seenCaller).To(Equal("svc@proj.iam.gserviceaccount.com"))
			Expect(*seenFields.Caller).To(Equal("svc@proj.iam.gserviceaccount.com"))
		})

		It("answers 401 for unauthenticated requests", func() {
			auth.err = &identity.AuthError{Kind: identity.ErrUnauthorized, Message: "Missing authorization header"}
			w := serve(router, "")
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(w.Body.String()).To(MatchJSON(`{"error": "Missing authorization header"}`))
		})

		It("answers 403 for callers outside the allow-list", func() {
			auth.err = &identity.AuthError{Kind: identity.ErrForbidden, Message: "Service account x not authorized for A2A access"}
			w := serve(router, "Bearer tok")
			Expect(w.Code).To(Equal(http.StatusForbidden))
		})
	})

	Describe("RateLimit", func() {
		var (
			limiter *stubLimiter
			router  *gin.Engine
		)

		BeforeEach(func() {
			limiter = &stubLimiter{}
			router = gin.New()
			auth := &stubAuthenticator{caller: "svc@proj.iam.gserviceaccount.com"}
			router.POST("/a2a/execute", middleware.RequireCaller(auth), middleware.RateLimit(limiter), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})
		})

		It("keys the limit by caller", func() {
			Expect(serve(router, "Bearer tok").Code).To(Equal(http.StatusOK))
			Expect(limiter.keys).To(Equal([]string{"svc@proj.iam.gserviceaccount.com"}))
		})

		It("keys anonymous requests by client IP", func() {
			router = gin.New()
			router.POST("/a2a/execute", middleware.RateLimit(limiter), func(c *gin.Context) { c.Status(http.StatusOK) })
			Expect(serve(router, "").Code).To(Equal(http.StatusOK))
			Expect(limiter.keys[0]).To(HavePrefix("ip:"))
		})

		It("answers 429 with Retry-After", func() {
			limiter.err = &ratelimit.LimitError{Limit: 100, Window: time.Minute, RetryAfter: 1500 * time.Millisecond}
			w := serve(router, "Bearer tok")
			Expect(w.Code).To(Equal(http.StatusTooManyRequests))
			Expect(w.Header().Get("Retry-After")).To(Equal("2"))
			Expect(w.Body.String()).To(MatchJSON(`{"error": "Rate limit exceeded: 100 requests per 60s"}`))
		})

		It("lets requests through when the limiter fails", func() {
			limiter.err = errors.New("redis: connection refused")
			Expect(serve(router, "Bearer tok").Code).To(Equal(http.StatusOK))
		})
	})

	Describe("Recovery", func() {
		It("turns panics into 500", func() {
			router := gin.New()
			router.Use(middleware.Recovery(), middleware.Logger())
			router.POST("/a2a/execute", func(*gin.Context) { panic("boom") })

			w := serve(router, "")
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(MatchJSON(`{"error": "internal server error"}`))
		})
	})
})
