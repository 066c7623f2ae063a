package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "op", "pw", RoleOperator)
	require.NoError(t, err)
	access, _, err := svc.LoginUser(ctx, "op", "pw", "", "")
	require.NoError(t, err)

	router := gin.New()
	router.Use(svc.AuthMiddleware())
	router.GET("/read", RequirePermission(PermOperate), func(c *gin.Context) {
		c.String(http.StatusOK, GetIdentity(c).Username)
	})
	router.GET("/plan", RequirePermission(PermPlan), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "no header", path: "/read", want: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/read", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage token", path: "/read", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "operator reads", path: "/read", header: "Bearer " + access, want: http.StatusOK},
		{name: "operator cannot plan", path: "/plan", header: "Bearer " + access, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "op", w.Body.String())
			}
		})
	}
}

func TestRequireMachineScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t)
	ctx := context.Background()

	station, _, err := svc.CreateStationToken(ctx, "agent", "rtx-1", RoleOperator, nil)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "op", "pw", RoleOperator)
	require.NoError(t, err)
	user, _, err := svc.LoginUser(ctx, "op", "pw", "", "")
	require.NoError(t, err)

	router := gin.New()
	machines := router.Group("/machines")
	machines.Use(svc.AuthMiddleware(), RequireMachineScope("id"))
	machines.GET("", func(c *gin.Context) { c.Status(http.StatusOK) })
	machines.GET("/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{name: "station on its machine", path: "/machines/rtx-1", token: station, want: http.StatusOK},
		{name: "station on another machine", path: "/machines/rtx-2", token: station, want: http.StatusForbidden},
		{name: "station lists machines", path: "/machines", token: station, want: http.StatusOK},
		{name: "user on any machine", path: "/machines/rtx-2", token: user, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
