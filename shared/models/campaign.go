package models

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus values. Suspended campaigns are excluded from usage counts
// and from the remediation-eligible set.
type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "active"
	CampaignSuspended CampaignStatus = "suspended"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign is the tenant-owned resource counted against max_campaigns. The
// wider campaign domain (billboards, contracts, creatives) lives outside
// this core; only what enforcement needs is modeled here.
type Campaign struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID        uuid.UUID      `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Name            string         `json:"name" gorm:"not null"`
	Status          CampaignStatus `json:"status" gorm:"type:varchar(20);default:'active';index"`
	CreatedBy       string         `json:"created_by"`
	SuspendedReason string         `json:"suspended_reason,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

func (Campaign) TableName() string {
	return "campaigns"
}
