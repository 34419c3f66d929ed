package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adboardhq/platform/shared/models"
	"github.com/adboardhq/platform/shared/utils"
)

// CtxTenant is the context key carrying the resolved *models.Tenant. The
// binding is per-request Gin context, never a process global.
const CtxTenant = "tenant"

// TenantSource looks tenants up by each resolution key. Lookup methods
// return models.ErrTenantNotFound for missing rows.
type TenantSource interface {
	TenantByID(id uuid.UUID) (*models.Tenant, error)
	TenantBySlug(slug string) (*models.Tenant, error)
	TenantByDomain(domain string) (*models.Tenant, error)
	TenantBySubdomain(subdomain string) (*models.Tenant, error)
}

// TenantResolver maps an inbound request to its tenant. Resolution order:
// explicit path identifier, exact domain match, then subdomain extraction.
type TenantResolver struct {
	source TenantSource
}

// NewTenantResolver creates a resolver over the given tenant source.
func NewTenantResolver(source TenantSource) *TenantResolver {
	return &TenantResolver{source: source}
}

// Resolve binds the request's tenant into the Gin context. Inactive tenants
// are rejected unless the caller is platform staff making a read-only
// request; the override exists for support investigation, never mutation.
func (tr *TenantResolver) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := tr.resolveRequest(c)
		if err != nil {
			if errors.Is(err, models.ErrTenantInactive) {
				utils.ForbiddenResponse(c, "Tenant is inactive")
			} else {
				utils.NotFoundResponse(c, "Tenant not found")
			}
			c.Abort()
			return
		}

		c.Set(CtxTenant, tenant)
		c.Next()
	}
}

// resolveRequest applies the resolution order against the request.
func (tr *TenantResolver) resolveRequest(c *gin.Context) (*models.Tenant, error) {
	// 1. Explicit identifier from the path (UUID or slug)
	if identifier := c.Param("tenant"); identifier != "" {
		return tr.resolveIdentifier(c, identifier)
	}

	// 2. Gateway-forwarded tenant id (already resolved upstream)
	if forwarded := c.GetHeader("X-Tenant-ID"); forwarded != "" {
		return tr.resolveIdentifier(c, forwarded)
	}

	// 3. Host-based resolution
	return tr.resolveHost(c, c.Request.Host)
}

func (tr *TenantResolver) resolveIdentifier(c *gin.Context, identifier string) (*models.Tenant, error) {
	var tenant *models.Tenant
	var err error
	if id, parseErr := uuid.Parse(identifier); parseErr == nil {
		tenant, err = tr.source.TenantByID(id)
	} else {
		tenant, err = tr.source.TenantBySlug(identifier)
	}
	if err != nil {
		return nil, err
	}
	return tr.checkActive(c, tenant)
}

func (tr *TenantResolver) resolveHost(c *gin.Context, host string) (*models.Tenant, error) {
	host = normalizeHost(host)
	if host == "" {
		return nil, models.ErrTenantNotFound
	}

	// Exact custom-domain match first
	tenant, err := tr.source.TenantByDomain(host)
	if err == nil {
		return tr.checkActive(c, tenant)
	}
	if !errors.Is(err, models.ErrTenantNotFound) {
		return nil, err
	}

	// Fall back to subdomain extraction
	sub := SubdomainFromHost(host)
	if sub == "" {
		return nil, models.ErrTenantNotFound
	}
	tenant, err = tr.source.TenantBySubdomain(sub)
	if err != nil {
		return nil, err
	}
	return tr.checkActive(c, tenant)
}

func (tr *TenantResolver) checkActive(c *gin.Context, tenant *models.Tenant) (*models.Tenant, error) {
	if tenant.IsActive {
		return tenant, nil
	}
	if IsPlatformAdmin(c) && isReadOnlyMethod(c.Request.Method) {
		return tenant, nil
	}
	return nil, models.ErrTenantInactive
}

func isReadOnlyMethod(method string) bool {
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return true
	}
	return false
}

// normalizeHost strips the port and lowercases the host.
func normalizeHost(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return strings.ToLower(strings.TrimSpace(host))
}

// SubdomainFromHost returns the leftmost label of a host with at least three
// dot-separated parts, excluding the reserved "www" label. Empty string means
// no subdomain to resolve.
func SubdomainFromHost(host string) string {
	parts := strings.Split(normalizeHost(host), ".")
	if len(parts) < 3 {
		return ""
	}
	sub := parts[0]
	if sub == "" || sub == "www" {
		return ""
	}
	return sub
}

// GetTenantFromContext extracts the resolved tenant from the Gin context.
func GetTenantFromContext(c *gin.Context) (*models.Tenant, bool) {
	val, exists := c.Get(CtxTenant)
	if !exists {
		return nil, false
	}
	tenant, ok := val.(*models.Tenant)
	return tenant, ok
}

// GormTenantSource is the production TenantSource.
type GormTenantSource struct {
	db *gorm.DB
}

// NewGormTenantSource creates the production tenant source.
func NewGormTenantSource(db *gorm.DB) *GormTenantSource {
	return &GormTenantSource{db: db}
}

func (s *GormTenantSource) TenantByID(id uuid.UUID) (*models.Tenant, error) {
	return s.lookup("id = ?", id)
}

func (s *GormTenantSource) TenantBySlug(slug string) (*models.Tenant, error) {
	return s.lookup("slug = ?", slug)
}

func (s *GormTenantSource) TenantByDomain(domain string) (*models.Tenant, error) {
	return s.lookup("domain = ?", domain)
}

func (s *GormTenantSource) TenantBySubdomain(subdomain string) (*models.Tenant, error) {
	return s.lookup("subdomain = ?", subdomain)
}

func (s *GormTenantSource) lookup(query string, arg interface{}) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := s.db.Where(query, arg).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}
