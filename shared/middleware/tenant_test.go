package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/adboardhq/platform/shared/models"
)

type fakeTenantSource struct {
	tenants []*models.Tenant
}

func (f *fakeTenantSource) TenantByID(id uuid.UUID) (*models.Tenant, error) {
	for _, t := range f.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, models.ErrTenantNotFound
}

func (f *fakeTenantSource) TenantBySlug(slug string) (*models.Tenant, error) {
	for _, t := range f.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, models.ErrTenantNotFound
}

func (f *fakeTenantSource) TenantByDomain(domain string) (*models.Tenant, error) {
	for _, t := range f.tenants {
		if t.Domain == domain {
			return t, nil
		}
	}
	return nil, models.ErrTenantNotFound
}

func (f *fakeTenantSource) TenantBySubdomain(subdomain string) (*models.Tenant, error) {
	for _, t := range f.tenants {
		if t.Subdomain == subdomain {
			return t, nil
		}
	}
	return nil, models.ErrTenantNotFound
}

// resolverRouter mounts the resolver the way the gateway does: one group
// with the tenant in the path, one relying on the Host header alone.
func resolverRouter(source TenantSource, platformRole string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.Use(func(c *gin.Context) {
		if platformRole != "" {
			c.Set(CtxPlatformRole, platformRole)
		}
		c.Next()
	})

	tr := NewTenantResolver(source)
	echo := func(c *gin.Context) {
		tenant, _ := GetTenantFromContext(c)
		c.JSON(http.StatusOK, gin.H{"slug": tenant.Slug})
	}

	router.GET("/tenants/:tenant/ping", tr.Resolve(), echo)
	router.GET("/ping", tr.Resolve(), echo)
	router.POST("/ping", tr.Resolve(), echo)
	router.PUT("/ping", tr.Resolve(), echo)
	return router
}

func skylineTenant() *models.Tenant {
	return &models.Tenant{
		ID:        uuid.New(),
		Name:      "Skyline Media",
		Slug:      "skyline-media",
		Subdomain: "skyline",
		Domain:    "ads.skyline-media.com",
		IsActive:  true,
	}
}

func doRequest(router *gin.Engine, method, path, host, tenantHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if host != "" {
		req.Host = host
	}
	if tenantHeader != "" {
		req.Header.Set("X-Tenant-ID", tenantHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestResolveByPathIdentifier(t *testing.T) {
	tenant := skylineTenant()
	router := resolverRouter(&fakeTenantSource{tenants: []*models.Tenant{tenant}}, "")

	w := doRequest(router, "GET", "/tenants/skyline-media/ping", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, "GET", "/tenants/"+tenant.ID.String()+"/ping", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, "GET", "/tenants/no-such-agency/ping", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResolveByForwardedHeader(t *testing.T) {
	tenant := skylineTenant()
	router := resolverRouter(&fakeTenantSource{tenants: []*models.Tenant{tenant}}, "")

	w := doRequest(router, "GET", "/ping", "", tenant.ID.String())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResolveByCustomDomain(t *testing.T) {
	tenant := skylineTenant()
	router := resolverRouter(&fakeTenantSource{tenants: []*models.Tenant{tenant}}, "")

	w := doRequest(router, "GET", "/ping", "ads.skyline-media.com", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "skyline-media")
}

func TestResolveBySubdomain(t *testing.T) {
	tenant := skylineTenant()
	tenant.Domain = ""
	router := resolverRouter(&fakeTenantSource{tenants: []*models.Tenant{tenant}}, "")

	w := doRequest(router, "GET", "/ping", "skyline.adboardhq.com", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, "GET", "/ping", "skyline.adboardhq.com:8080", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Domain match takes priority over subdomain extraction
	other := skylineTenant()
	other.ID = uuid.New()
	other.Slug = "other-agency"
	other.Subdomain = ""
	other.Domain = "skyline.adboardhq.com"
	router = resolverRouter(&fakeTenantSource{tenants: []*models.Tenant{tenant, other}}, "")
	w = doRequest(router, "GET", "/ping", "skyline.adboardhq.com", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "other-agency")
}

func TestResolveUnknownHost(t *testing.T) {
	router := resolverRouter(&fakeTenantSource{}, "")

	w := doRequest(router, "GET", "/ping", "nobody.adboardhq.com", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, "GET", "/ping", "adboardhq.com", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResolveInactiveTenant(t *testing.T) {
	tenant := skylineTenant()
	tenant.IsActive = false
	source := &fakeTenantSource{tenants: []*models.Tenant{tenant}}

	router := resolverRouter(source, "")
	w := doRequest(router, "GET", "/tenants/skyline-media/ping", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestResolveInactiveTenantPlatformAdminReadOnly(t *testing.T) {
	tenant := skylineTenant()
	tenant.IsActive = false
	source := &fakeTenantSource{tenants: []*models.Tenant{tenant}}
	router := resolverRouter(source, PlatformRoleAdmin)

	// Platform staff may inspect an inactive tenant
	w := doRequest(router, "GET", "/tenants/skyline-media/ping", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// The override never extends to mutation
	w = doRequest(router, "POST", "/ping", "", tenant.ID.String())
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = doRequest(router, "PUT", "/ping", "", tenant.ID.String())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubdomainFromHost(t *testing.T) {
	cases := []struct {
		host string
		want string
	}{
		{"acme.adboardhq.com", "acme"},
		{"acme.adboardhq.com:8080", "acme"},
		{"ACME.AdboardHQ.com", "acme"},
		{"www.adboardhq.com", ""},
		{"adboardhq.com", ""},
		{"localhost", ""},
		{"localhost:8080", ""},
		{"", ""},
		{".adboardhq.com", ""},
		{"deep.acme.adboardhq.com", "deep"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, SubdomainFromHost(tc.host), "host %q", tc.host)
	}
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "acme.adboardhq.com", normalizeHost("ACME.adboardhq.com:443"))
	assert.Equal(t, "acme.adboardhq.com", normalizeHost(" acme.adboardhq.com "))
	assert.Equal(t, "localhost", normalizeHost("localhost:8080"))
}
