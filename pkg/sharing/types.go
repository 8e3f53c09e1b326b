package sharing

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OwnerType identifies the kind of principal a sharing row refers to
type OwnerType string

const (
	OwnerTypeUser  OwnerType = "USER"
	OwnerTypeGroup OwnerType = "GROUP"
)

// Valid reports whether the owner type is one of the known variants
func (t OwnerType) Valid() bool {
	return t == OwnerTypeUser || t == OwnerTypeGroup
}

// SharingType identifies how a sharing row came to exist
type SharingType string

const (
	// SharingTypeDirectCascading is an explicit grant that also applies to
	// all descendants of the entity
	SharingTypeDirectCascading SharingType = "DIRECT_CASCADING"

	// SharingTypeDirectNonCascading is an explicit grant on a single entity
	SharingTypeDirectNonCascading SharingType = "DIRECT_NON_CASCADING"

	// SharingTypeIndirectCascading is a derived row copied onto a descendant
	// by cascade propagation; never created directly by a caller
	SharingTypeIndirectCascading SharingType = "INDIRECT_CASCADING"
)

// Valid reports whether the sharing type is one of the known variants
func (t SharingType) Valid() bool {
	switch t {
	case SharingTypeDirectCascading, SharingTypeDirectNonCascading, SharingTypeIndirectCascading:
		return true
	}
	return false
}

// Direct reports whether the row was explicitly granted on its entity
func (t SharingType) Direct() bool {
	return t == SharingTypeDirectCascading || t == SharingTypeDirectNonCascading
}

// OwnerPermissionTypeID is the reserved external id of the implicit owner
// permission. It exists per tenant without registration and can never be
// created, updated, deleted, granted or revoked through the sharing API.
const OwnerPermissionTypeID = "OWNER"

// EntityType is a tenant-registered kind of shareable entity
type EntityType struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PermissionType is a tenant-registered kind of permission
type PermissionType struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Entity is a shareable resource. Entities form a forest per tenant via
// ParentID. SharedCount is a derived, persisted cache of the number of
// active non-owner sharing rows referencing the entity.
type Entity struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	TypeID      string    `json:"type_id"`
	OwnerID     string    `json:"owner_id"`
	ParentID    string    `json:"parent_id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	FullText    string    `json:"full_text,omitempty"`
	SharedCount int64     `json:"shared_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Sharing is a single grant row in the ledger. InheritedParentID equals
// EntityID for direct grants and the id of the ancestor entity where the
// originating cascading grant was issued for indirect rows.
type Sharing struct {
	ID                string      `json:"id"`
	EntityID          string      `json:"entity_id"`
	PermissionTypeID  string      `json:"permission_type_id"`
	TenantID          string      `json:"tenant_id"`
	AssociatingID     string      `json:"associating_id"`
	OwnerType         OwnerType   `json:"owner_type"`
	SharingType       SharingType `json:"sharing_type"`
	InheritedParentID string      `json:"inherited_parent_id"`
	SharedBy          string      `json:"shared_by"`
	CreatedAt         time.Time   `json:"created_at"`
}

// SearchCriteria filters SearchEntities. Zero-valued fields are ignored.
type SearchCriteria struct {
	TypeID           string   `json:"type_id,omitempty"`
	OwnerID          string   `json:"owner_id,omitempty"`
	Name             string   `json:"name,omitempty"`
	FullText         string   `json:"full_text,omitempty"`
	ParentID         string   `json:"parent_id,omitempty"`
	PermissionTypeID string   `json:"permission_type_id,omitempty"`
	AssociatingIDs   []string `json:"associating_ids,omitempty"`
	Limit            int      `json:"limit,omitempty"`
	Offset           int      `json:"offset,omitempty"`

	// BottomUp answers "what can these principals see, including inherited
	// visibility" by walking sharing rows instead of the entity tree
	BottomUp bool `json:"bottom_up,omitempty"`
}

// sharingNamespace seeds the deterministic sharing row ids
var sharingNamespace = uuid.MustParse("7f3c1d1e-9a54-4c2b-8f6e-2b0d5d8a4c11")

// scopedKey builds the tenant-scoped storage key for an object. External ids
// are tenant-local and human-chosen; suffixing the tenant id guarantees no
// cross-tenant collision.
func scopedKey(externalID, tenantID string) string {
	return externalID + "@" + tenantID
}

// deriveSharingID derives the deterministic id of a sharing row from its
// identifying tuple. Re-granting the same tuple yields the same id, making
// inserts idempotent under ON CONFLICT DO NOTHING.
func deriveSharingID(entityID, permissionTypeID, associatingID, tenantID, inheritedParentID string) string {
	name := strings.Join([]string{entityID, permissionTypeID, associatingID, tenantID, inheritedParentID}, "|")
	return uuid.NewSHA1(sharingNamespace, []byte(name)).String()
}
