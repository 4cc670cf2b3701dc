package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit_ledger/internal/db/dbtest"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, token string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/x", JWTAuthMiddleware("secret"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetUint("userID")})
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "garbage", nil).Code)

	token, err := utils.GenerateJWT(5, domain.RoleEmployee, "secret")
	require.NoError(t, err)
	w := serve(r, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":5}`, w.Body.String())
}

func TestRequireRolesReadsStoredRole(t *testing.T) {
	conn := dbtest.Open(t)
	hr := domain.User{Username: "hr", Password: "x", Role: domain.RoleHR}
	emp := domain.User{Username: "emp", Password: "x", Role: domain.RoleEmployee}
	require.NoError(t, conn.Create(&hr).Error)
	require.NoError(t, conn.Create(&emp).Error)

	r := gin.New()
	r.GET("/x", JWTAuthMiddleware("secret"), RequireRoles(conn, domain.RoleAdmin, domain.RoleHR), func(c *gin.Context) {
		actor := c.MustGet("actor").(domain.Actor)
		c.JSON(http.StatusOK, gin.H{"role": actor.Role})
	})

	hrToken, err := utils.GenerateJWT(hr.ID, hr.Role, "secret")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve(r, hrToken, nil).Code)

	// A forged role claim does not help: the stored role decides.
	forged, err := utils.GenerateJWT(emp.ID, domain.RoleAdmin, "secret")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(r, forged, nil).Code)

	ghost, err := utils.GenerateJWT(999, domain.RoleAdmin, "secret")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(r, ghost, nil).Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), AccessLog())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	w := serve(r, "", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), w.Body.String())

	w = serve(r, "", map[string]string{"X-Request-ID": "abc"})
	assert.Equal(t, "abc", w.Body.String())
}
