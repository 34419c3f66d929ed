package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant represents one agency account. Each of ID, Slug, Subdomain and
// Domain resolves to at most one active tenant. Tenants are never physically
// deleted; DeletedAt soft-retires them.
type Tenant struct {
	ID               uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name             string         `json:"name" gorm:"not null"`
	Slug             string         `json:"slug" gorm:"uniqueIndex;not null"`
	Subdomain        string         `json:"subdomain" gorm:"uniqueIndex"`
	Domain           string         `json:"domain" gorm:"uniqueIndex"`
	IsActive         bool           `json:"is_active" gorm:"default:true"`
	FeatureFlags     FeatureFlags   `json:"feature_flags" gorm:"type:jsonb;default:'{}'"`
	SubscriptionTier string         `json:"subscription_tier" gorm:"default:'trial'"`
	StorageUsedMB    int64          `json:"storage_used_mb" gorm:"default:0"`
	RestrictedReason string         `json:"restricted_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Relationships
	Memberships []Membership `json:"memberships,omitempty" gorm:"foreignKey:TenantID"`
}

// TableName returns the table name for the Tenant model
func (Tenant) TableName() string {
	return "tenants"
}

// StorageUsedGB returns the storage snapshot in whole gigabytes, rounded up.
func (t *Tenant) StorageUsedGB() int {
	if t.StorageUsedMB <= 0 {
		return 0
	}
	return int((t.StorageUsedMB + 1023) / 1024)
}

// HasFeatureFlag reports whether the tenant's persisted flag set enables the
// named feature. Entitlement decisions go through the entitlement engine;
// this is only the snapshot written by enforcement.
func (t *Tenant) HasFeatureFlag(name string) bool {
	return t.FeatureFlags[name]
}
