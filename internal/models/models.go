package models

import (
	"time"
)

// ProtectedResource is a shared document placed behind a password. Created
// and updated by the account-facing product; the gateway only reads rows
// and bumps VisitCount.
type ProtectedResource struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID         uint      `gorm:"index;not null" json:"owner_id"`
	Slug            string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"slug"`
	UpstreamAddress string    `gorm:"type:text;not null" json:"upstream_address"`
	CredentialHash  string    `gorm:"type:varchar(128);not null" json:"-"`
	Title           string    `gorm:"type:varchar(255);not null" json:"title"`
	VisitCount      int64     `gorm:"not null;default:0" json:"visit_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AccessAttempt is an append-only audit row, one per verification call.
// FingerprintHash is a salted one-way hash; the raw fingerprint is never
// stored.
type AccessAttempt struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	ResourceID      uint      `gorm:"index;not null"`
	FingerprintHash string    `gorm:"type:varchar(64);not null"`
	Succeeded       bool      `gorm:"not null"`
	Timestamp       time.Time `gorm:"index;not null"`
}

// CustomDomainBinding maps a tenant-owned hostname to a resource. Rows are
// written by the domain-verification flow; the gateway treats them as
// read-only and honors only verified bindings.
type CustomDomainBinding struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Domain     string `gorm:"type:varchar(253);uniqueIndex;not null"`
	ResourceID uint   `gorm:"index;not null"`
	Verified   bool   `gorm:"not null;default:false"`
	CreatedAt  time.Time
}

// AssetCache pairs a cached upstream asset body in object storage with its
// content type and expiry.
type AssetCache struct {
	Key        string    `gorm:"primaryKey;type:varchar(512);not null"`
	SourceURL  string    `gorm:"type:text;not null"`
	MediaType  string    `gorm:"type:varchar(128);not null"`
	SizeBytes  int64     `gorm:"not null;default:-1"`
	StoredAt   time.Time `gorm:"index;not null"`
	ExpiresAt  time.Time `gorm:"index;not null"`
	LastAccess time.Time `gorm:"index;not null"`
}

func (ProtectedResource) TableName() string {
	return "protected_resources"
}

func (AccessAttempt) TableName() string {
	return "access_attempts"
}

func (CustomDomainBinding) TableName() string {
	return "custom_domain_bindings"
}

func (AssetCache) TableName() string {
	return "asset_cache"
}
