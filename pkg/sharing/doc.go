// Package sharing implements the multi-tenant cascading entity-sharing
// engine: tenant-scoped entity and permission type registries, an entity
// store forming a per-tenant forest, and the sharing ledger that grants and
// revokes permissions with optional cascade down the hierarchy.
//
// All identifiers are tenant-scoped. Entities and types are stored under
// keys of the form externalID@tenantID, sharing rows under a deterministic
// UUID derived from the full grant tuple so that re-granting the same tuple
// is idempotent.
package sharing
