package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/quota-guard/internal/handlers"
	"github.com/serroba/quota-guard/internal/middleware"
	"github.com/serroba/quota-guard/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func resetQuota(router http.Handler, token, body string) int {
	req := httptest.NewRequest(http.MethodDelete, "/admin/quota", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handlers.HeaderShopDomain, "shop-a")

	if token != "" {
		req.Header.Set(middleware.HeaderAdminToken, token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w.Code
}

func TestAdminOnly(t *testing.T) {
	resetBody := `{"identifier":"orders:shop-a","policy":"export"}`

	t.Run("caller cannot reset its own quota", func(t *testing.T) {
		router := setupQuotaAPI(t, newMemoryLimiter(), nil)

		for range ratelimit.PolicyExport.MaxRequests {
			require.Equal(t, http.StatusAccepted, postExport(router, "shop-a").Code)
		}

		require.Equal(t, http.StatusTooManyRequests, postExport(router, "shop-a").Code)

		assert.Equal(t, http.StatusUnauthorized, resetQuota(router, "", resetBody))
		assert.Equal(t, http.StatusUnauthorized, resetQuota(router, "guess", resetBody))

		assert.Equal(t, http.StatusTooManyRequests, postExport(router, "shop-a").Code, "quota is untouched")
	})

	t.Run("operator reset restores the quota", func(t *testing.T) {
		router := setupQuotaAPI(t, newMemoryLimiter(), nil)

		for range ratelimit.PolicyExport.MaxRequests {
			postExport(router, "shop-a")
		}

		require.Equal(t, http.StatusNoContent, resetQuota(router, testAdminToken, resetBody))
		assert.Equal(t, http.StatusAccepted, postExport(router, "shop-a").Code)
	})

	t.Run("stats require the token", func(t *testing.T) {
		router := setupQuotaAPI(t, newMemoryLimiter(), nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/quota/stats", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		req := httptest.NewRequest(http.MethodGet, "/admin/quota/stats", nil)
		req.Header.Set(middleware.HeaderAdminToken, testAdminToken)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("empty token disables administration", func(t *testing.T) {
		router := chi.NewMux()
		api := humachi.New(router, huma.DefaultConfig("Test", "1.0.0"))

		admin := huma.NewGroup(api, "/admin")
		admin.UseMiddleware(middleware.AdminOnly(api, "", zap.NewNop()))
		handlers.RegisterAdminRoutes(admin, handlers.NewQuotaHandler(newMemoryLimiter(), zap.NewNop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/quota/stats", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestPeekQuota_OnlyReadsTheCaller(t *testing.T) {
	limiter := newMemoryLimiter()
	router := setupQuotaAPI(t, limiter, nil)

	for range ratelimit.PolicyExport.MaxRequests {
		limiter.Check(context.Background(), "export:shop-a", ratelimit.PolicyExport)
	}

	peek := func(shop, query string) map[string]any {
		req := httptest.NewRequest(http.MethodGet, "/quota/export"+query, nil)
		req.Header.Set(handlers.HeaderShopDomain, shop)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

		return body
	}

	own := peek("shop-a", "")
	assert.Equal(t, false, own["allowed"])
	assert.InDelta(t, 0, own["remaining"], 0)

	other := peek("shop-b", "?identifier=shop-a")
	assert.Equal(t, true, other["allowed"], "another caller's counter is not readable")
	assert.InDelta(t, 5, other["remaining"], 0)
	assert.NotContains(t, other, "identifier")
}
