package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	group := NewDomainGroup("test", "/test").
		GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	NewRouter(engine).Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup(t *testing.T) {
	t.Run("creates group with name and prefix", func(t *testing.T) {
		g := NewDomainGroup("issues", "/issues")
		assert.Equal(t, "issues", g.Name())
		assert.Equal(t, "/issues", g.Prefix())
	})

	t.Run("registers GET and POST routes", func(t *testing.T) {
		engine := gin.New()
		NewDomainGroup("test", "/test").
			GET("/items", func(c *gin.Context) { c.String(http.StatusOK, "items") }).
			POST("/items", func(c *gin.Context) { c.String(http.StatusCreated, "created") }).
			RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/items", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/test/items", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("applies middleware", func(t *testing.T) {
		engine := gin.New()
		NewDomainGroup("test", "/test").
			Use(func(c *gin.Context) {
				c.Header("X-Test-Middleware", "applied")
				c.Next()
			}).
			GET("/items", func(c *gin.Context) { c.String(http.StatusOK, "ok") }).
			RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/items", nil))

		assert.Equal(t, "applied", w.Header().Get("X-Test-Middleware"))
	})

	t.Run("creates subgroups", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("webhooks", "/webhooks/:backend")
		g.Group("calendar", "/calendar").
			POST("/:property", func(c *gin.Context) {
				c.String(http.StatusAccepted, c.Param("backend")+"/"+c.Param("property"))
			})
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/airbnb/calendar/p1", nil))

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "airbnb/p1", w.Body.String())
	})
}
