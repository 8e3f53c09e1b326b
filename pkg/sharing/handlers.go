package sharing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/apache/airavata-custos-sub001/pkg/audit"
	"github.com/apache/airavata-custos-sub001/pkg/httputil"
	"github.com/apache/airavata-custos-sub001/pkg/observability"
)

// Handlers provides the HTTP handlers for all sharing operations
type Handlers struct {
	store   *Store
	cache   *AccessCache
	auditor audit.Logger
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewHandlers creates new sharing handlers. The access cache may be nil when
// redis is not configured.
func NewHandlers(store *Store, cache *AccessCache, auditor audit.Logger, metrics *observability.Metrics, logger *observability.Logger) *Handlers {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &Handlers{
		store:   store,
		cache:   cache,
		auditor: auditor,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes registers all sharing routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Entity type registry
	router.HandleFunc("/tenants/{tenant}/entity-types", h.CreateEntityType).Methods("POST")
	router.HandleFunc("/tenants/{tenant}/entity-types", h.ListEntityTypes).Methods("GET")
	router.HandleFunc("/tenants/{tenant}/entity-types/{id}", h.GetEntityType).Methods("GET")
	router.HandleFunc("/tenants/{tenant}/entity-types/{id}", h.UpdateEntityType).Methods("PUT")
	router.HandleFunc("/tenants/{tenant}/entity-types/{id}", h.DeleteEntityType).Methods("DELETE")

	// Permission type registry
	router.HandleFunc("/tenants/{tenant}/permission-types", h.CreatePermissionType).Methods("POST")
	router.HandleFunc("/tenants/{tenant}/permission-types", h.ListPermissionTypes).Methods("GET")
	router.HandleFunc("/tenants/{tenant}/permission-types/{id}", h.GetPermissionType).Methods("GET")
	router.HandleFunc("/tenants/{tenant}/permission-types/{id}", h.UpdatePermissionType).Methods("PUT")
	router.HandleFunc("/tenants/{tenant}/permission-types/{id}", h.DeletePermissionType).Methods("DELETE")

	// Entity store
	router.HandleFunc("/tenants/{tenant}/entities", h.CreateEntity).Methods("POST")
	router.HandleFunc("/tenants/{tenant}/entities/search", h.SearchEntities).Methods("POST")
	router.HandleFunc("/tenants/{tenant}/entities/{id}", h.GetEntity).Methods("GET")
	router.HandleFunc("/tenants/{tenant}/entities/{id}", h.UpdateEntity).Methods("PUT")
	router.HandleFunc("/tenants/{tenant}/entities/{id}", h.DeleteEntity).Methods("DELETE")
	router.HandleFunc("/tenants/{tenant}/entities/{id}/exists", h.EntityExists).Methods("GET")

	// Sharing ledger
	router.HandleFunc("/tenants/{tenant}/entities/{id}/share", h.ShareEntity).Methods("POST")
	router.HandleFunc("/tenants/{tenant}/entities/{id}/revoke", h.RevokePermission).Methods("POST")
	router.HandleFunc("/tenants/{tenant}/entities/{id}/access", h.UserHasAccess).Methods("GET")
	router.HandleFunc("/tenants/{tenant}/entities/{id}/shared-users", h.GetSharedUsers).Methods("GET")
	router.HandleFunc("/tenants/{tenant}/entities/{id}/shared-groups", h.GetSharedGroups).Methods("GET")
	router.HandleFunc("/tenants/{tenant}/sharings", h.GetSharings).Methods("GET")

	// Audit trail
	router.HandleFunc("/tenants/{tenant}/audit-events", h.ListAuditEvents).Methods("GET")
}

// observe records one operation outcome in the metrics registry
func (h *Handlers) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	h.metrics.ObserveOperation(operation, status, time.Since(start))
}

// writeError maps the sharing error taxonomy to HTTP status codes
func (h *Handlers) writeError(w http.ResponseWriter, operation string, err error) {
	var kind string
	switch {
	case errors.Is(err, ErrNotFound):
		kind = "not_found"
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrAlreadyExists):
		kind = "already_exists"
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, ErrInvalidArgument):
		kind = "invalid_argument"
		httputil.WriteBadRequest(w, err.Error())
	default:
		kind = "internal"
		httputil.WriteInternalError(w, err)
	}
	h.metrics.SharingErrorsTotal.WithLabelValues(operation, kind).Inc()
}

// invalidate drops the tenant's cached access decisions after a mutation
func (h *Handlers) invalidate(ctx context.Context, tenantID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateTenant(ctx, tenantID); err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).Warn("failed to invalidate access cache")
	}
}

// record writes an audit event, logging rather than failing the request on error
func (h *Handlers) record(ctx context.Context, event *audit.Event) {
	if err := h.auditor.Log(ctx, event); err != nil {
		h.logger.WithError(err).WithField("tenant_id", event.TenantID).Warn("failed to record audit event")
	}
}

// CreateEntityType registers a new entity type
func (h *Handlers) CreateEntityType(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tenantID := mux.Vars(r)["tenant"]

	var et EntityType
	if !httputil.ParseJSONOrError(w, r, &et) {
		return
	}

	err := h.store.CreateEntityType(r.Context(), tenantID, &et)
	h.observe("create_entity_type", start, err)
	if err != nil {
		h.writeError(w, "create_entity_type", err)
		return
	}

	h.record(r.Context(), &audit.Event{
		TenantID: tenantID,
		Type:     audit.EventTypeTypeCreate,
		Status:   audit.EventStatusSuccess,
		Message:  "entity type " + et.ID + " created",
	})
	httputil.WriteCreated(w, et)
}

// ListEntityTypes lists the entity types of a tenant
func (h *Handlers) ListEntityTypes(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	types, err := h.store.ListEntityTypes(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, "list_entity_types", err)
		return
	}
	httputil.WriteSuccess(w, types)
}

// GetEntityType retrieves an entity type
func (h *Handlers) GetEntityType(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	et, err := h.store.GetEntityType(r.Context(), vars["tenant"], vars["id"])
	if err != nil {
		h.writeError(w, "get_entity_type", err)
		return
	}
	httputil.WriteSuccess(w, et)
}

// UpdateEntityType updates an entity type
func (h *Handlers) UpdateEntityType(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	tenantID := vars["tenant"]

	var et EntityType
	if !httputil.ParseJSONOrError(w, r, &et) {
		return
	}
	et.ID = vars["id"]

	err := h.store.UpdateEntityType(r.Context(), tenantID, &et)
	h.observe("update_entity_type", start, err)
	if err != nil {
		h.writeError(w, "update_entity_type", err)
		return
	}

	h.record(r.Context(), &audit.Event{
		TenantID: tenantID,
		Type:     audit.EventTypeTypeUpdate,
		Status:   audit.EventStatusSuccess,
		Message:  "entity type " + et.ID + " updated",
	})
	httputil.WriteSuccess(w, et)
}

// DeleteEntityType deletes an entity type
func (h *Handlers) DeleteEntityType(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	tenantID := vars["tenant"]

	err := h.store.DeleteEntityType(r.Context(), tenantID, vars["id"])
	h.observe("delete_entity_type", start, err)
	if err != nil {
		h.writeError(w, "delete_entity_type", err)
		return
	}

	h.record(r.Context(), &audit.Event{
		TenantID: tenantID,
		Type:     audit.EventTypeTypeDelete,
		Status:   audit.EventStatusSuccess,
		Message:  "entity type " + vars["id"] + " deleted",
	})
	httputil.WriteNoContent(w)
}

// CreatePermissionType registers a new permission type
func (h *Handlers) CreatePermissionType(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tenantID := mux.Vars(r)["tenant"]

	var pt PermissionType
	if !httputil.ParseJSONOrError(w, r, &pt) {
		return
	}

	err := h.store.CreatePermissionType(r.Context(), tenantID, &pt)
	h.observe("create_permission_type", start, err)
	if err != nil {
		h.writeError(w, "create_permission_type", err)
		return
	}

	h.record(r.Context(), &audit.Event{
		TenantID: tenantID,
		Type:     audit.EventTypeTypeCreate,
		Status:   audit.EventStatusSuccess,
		Message:  "permission type " + pt.ID + " created",
	})
	httputil.WriteCreated(w, pt)
}

// ListPermissionTypes lists the permission types of a tenant
func (h *Handlers) ListPermissionTypes(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	types, err := h.store.ListPermissionTypes(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, "list_permission_types", err)
		return
	}
	httputil.WriteSuccess(w, types)
}

// GetPermissionType retrieves a permission type
func (h *Handlers) GetPermissionType(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	pt, err := h.store.GetPermissionType(r.Context(), vars["tenant"], vars["id"])
	if err != nil {
		h.writeError(w, "get_permission_type", err)
		return
	}
	httputil.WriteSuccess(w, pt)
}

// UpdatePermissionType updates a permission type
func (h *Handlers) UpdatePermissionType(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	tenantID := vars["tenant"]

	var pt PermissionType
	if !httputil.ParseJSONOrError(w, r, &pt) {
		return
	}
	pt.ID = vars["id"]

	err := h.store.UpdatePermissionType(r.Context(), tenantID, &pt)
	h.observe("update_permission_type", start, err)
	if err != nil {
		h.writeError(w, "update_permission_type", err)
		return
	}

	h.record(r.Context(), &audit.Event{
		TenantID: tenantID,
		Type:     audit.EventTypeTypeUpdate,
		Status:   audit.EventStatusSuccess,
		Message:  "permission type " + pt.ID + " updated",
	})
	httputil.WriteSuccess(w, pt)
}

// DeletePermissionType deletes a permission type
func (h *Handlers) DeletePermissionType(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	tenantID := vars["tenant"]

	err := h.store.DeletePermissionType(r.Context(), tenantID, vars["id"])
	h.observe("delete_permission_type", start, err)
	if err != nil {
		h.writeError(w, "delete_permission_type", err)
		return
	}

	h.record(r.Context(), &audit.Event{
		TenantID: tenantID,
		Type:     audit.EventTypeTypeDelete,
		Status:   audit.EventStatusSuccess,
		Message:  "permission type " + vars["id"] + " deleted",
	})
	httputil.WriteNoContent(w)
}

// CreateEntity creates a new entity
func (h *Handlers) CreateEntity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tenantID := mux.Vars(r)["tenant"]

	var e Entity
	if !httputil.ParseJSONOrError(w, r, &e) {
		return
	}

	err := h.store.CreateEntity(r.Context(), tenantID, &e)
	h.observe("create_entity", start, err)
	if err != nil {
		h.writeError(w, "create_entity", err)
		return
	}

	h.invalidate(r.Context(), tenantID)
	h.record(r.Context(), &audit.Event{
		TenantID: tenantID,
		Type:     audit.EventTypeEntityCreate,
		Status:   audit.EventStatusSuccess,
		Actor:    e.OwnerID,
		EntityID: e.ID,
	})
	httputil.WriteCreated(w, e)
}

// GetEntity retrieves an entity
func (h *Handlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	e, err := h.store.GetEntity(r.Context(), vars["tenant"], vars["id"])
	if err != nil {
		h.writeError(w, "get_entity", err)
		return
	}
	httputil.WriteSuccess(w, e)
}

// UpdateEntity updates an entity
func (h *Handlers) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	tenantID := vars["tenant"]

	var e Entity
	if !httputil.ParseJSONOrError(w, r, &e) {
		return
	}
	e.ID = vars["id"]

	err := h.store.UpdateEntity(r.Context(), tenantID, &e)
	h.observe("update_entity", start, err)
	if err != nil {
		h.writeError(w, "update_entity", err)
		return
	}

	h.invalidate(r.Context(), tenantID)
	h.record(r.Context(), &audit.Event{
		TenantID: tenantID,
		Type:     audit.EventTypeEntityUpdate,
		Status:   audit.EventStatusSuccess,
		EntityID: e.ID,
	})
	httputil.WriteSuccess(w, e)
}

// DeleteEntity deletes an entity
func (h *Handlers) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	tenantID := vars["tenant"]

	err := h.store.DeleteEntity(r.Context(), tenantID, vars["id"])
	h.observe("delete_entity", start, err)
	if err != nil {
		h.writeError(w, "delete_entity", err)
		return
	}

	h.invalidate(r.Context(), tenantID)
	h.record(r.Context(), &audit.Event{
		TenantID: tenantID,
		Type:     audit.EventTypeEntityDelete,
		Status:   audit.EventStatusSuccess,
		EntityID: vars["id"],
	})
	httputil.WriteNoContent(w)
}

// EntityExists reports entity existence
func (h *Handlers) EntityExists(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	exists, err := h.store.EntityExists(r.Context(), vars["tenant"], vars["id"])
	if err != nil {
		h.writeError(w, "entity_exists", err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"exists": exists})
}

// SearchEntities searches the tenant's entities
func (h *Handlers) SearchEntities(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tenantID := mux.Vars(r)["tenant"]

	var criteria SearchCriteria
	if !httputil.ParseJSONOrError(w, r, &criteria) {
		return
	}

	entities, err := h.store.SearchEntities(r.Context(), tenantID, criteria)
	h.observe("search_entities", start, err)
	if err != nil {
		h.writeError(w, "search_entities", err)
		return
	}
	httputil.WriteSuccess(w, entities)
}

// shareRequest is the body of a share or revoke call
type shareRequest struct {
	PermissionTypeID string    `json:"permission_type_id"`
	UserIDs          []string  `json:"user_ids"`
	Cascade          bool      `json:"cascade"`
	OwnerType        OwnerType `json:"owner_type"`
	SharedBy         string    `json:"shared_by"`
}

// ShareEntity grants a permission on an entity
func (h *Handlers) ShareEntity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	tenantID := vars["tenant"]
	entityID := vars["id"]

	var req shareRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.OwnerType == "" {
		req.OwnerType = OwnerTypeUser
	}

	err := h.store.ShareEntity(r.Context(), tenantID, entityID, req.PermissionTypeID, req.UserIDs, req.Cascade, req.OwnerType, req.SharedBy)
	h.observe("share_entity", start, err)
	if err != nil {
		h.writeError(w, "share_entity", err)
		return
	}

	h.invalidate(r.Context(), tenantID)
	h.record(r.Context(), &audit.Event{
		TenantID:   tenantID,
		Type:       audit.EventTypeSharingGrant,
		Status:     audit.EventStatusSuccess,
		Actor:      req.SharedBy,
		EntityID:   entityID,
		Permission: req.PermissionTypeID,
		Principals: strings.Join(req.UserIDs, ","),
	})
	httputil.WriteSuccess(w, map[string]bool{"status": true})
}

// RevokePermission revokes a permission on an entity
func (h *Handlers) RevokePermission(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	tenantID := vars["tenant"]
	entityID := vars["id"]

	var req shareRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := h.store.RevokePermission(r.Context(), tenantID, entityID, req.PermissionTypeID, req.UserIDs)
	h.observe("revoke_permission", start, err)
	if err != nil {
		h.writeError(w, "revoke_permission", err)
		return
	}

	h.invalidate(r.Context(), tenantID)
	h.record(r.Context(), &audit.Event{
		TenantID:   tenantID,
		Type:       audit.EventTypeSharingRevoke,
		Status:     audit.EventStatusSuccess,
		EntityID:   entityID,
		Permission: req.PermissionTypeID,
		Principals: strings.Join(req.UserIDs, ","),
	})
	httputil.WriteSuccess(w, map[string]bool{"status": true})
}

// UserHasAccess answers an access-control query
func (h *Handlers) UserHasAccess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	tenantID := vars["tenant"]
	entityID := vars["id"]

	permission := r.URL.Query().Get("permission")
	principal := r.URL.Query().Get("principal")
	if permission == "" || principal == "" {
		httputil.WriteBadRequest(w, "permission and principal query parameters are required")
		return
	}

	var (
		allowed bool
		err     error
	)
	if h.cache != nil {
		allowed, err = h.cache.UserHasAccess(r.Context(), tenantID, entityID, permission, principal)
	} else {
		allowed, err = h.store.UserHasAccess(r.Context(), tenantID, entityID, permission, principal)
	}
	h.observe("user_has_access", start, err)
	if err != nil {
		h.writeError(w, "user_has_access", err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"allowed": allowed})
}

// GetSharedUsers lists users holding a permission on an entity
func (h *Handlers) GetSharedUsers(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID := vars["tenant"]
	entityID := vars["id"]

	permission := r.URL.Query().Get("permission")
	if permission == "" {
		httputil.WriteBadRequest(w, "permission query parameter is required")
		return
	}

	var (
		users []string
		err   error
	)
	if httputil.ParseQueryBool(r, "direct") {
		users, err = h.store.GetListOfDirectlySharedUsers(r.Context(), tenantID, entityID, permission)
	} else {
		users, err = h.store.GetListOfSharedUsers(r.Context(), tenantID, entityID, permission)
	}
	if err != nil {
		h.writeError(w, "get_shared_users", err)
		return
	}
	httputil.WriteSuccess(w, users)
}

// GetSharedGroups lists groups holding a permission on an entity
func (h *Handlers) GetSharedGroups(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID := vars["tenant"]
	entityID := vars["id"]

	permission := r.URL.Query().Get("permission")
	if permission == "" {
		httputil.WriteBadRequest(w, "permission query parameter is required")
		return
	}

	var (
		groups []string
		err    error
	)
	if httputil.ParseQueryBool(r, "direct") {
		groups, err = h.store.GetListOfDirectlySharedGroups(r.Context(), tenantID, entityID, permission)
	} else {
		groups, err = h.store.GetListOfSharedGroups(r.Context(), tenantID, entityID, permission)
	}
	if err != nil {
		h.writeError(w, "get_shared_groups", err)
		return
	}
	httputil.WriteSuccess(w, groups)
}

// GetSharings enumerates ledger state for audit and listing
func (h *Handlers) GetSharings(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]
	entityID := r.URL.Query().Get("entity_id")

	var (
		sharings []Sharing
		err      error
	)
	if httputil.ParseQueryBool(r, "direct") {
		sharings, err = h.store.GetAllDirectSharings(r.Context(), tenantID)
	} else {
		sharings, err = h.store.GetAllSharings(r.Context(), tenantID, entityID)
	}
	if err != nil {
		h.writeError(w, "get_sharings", err)
		return
	}
	httputil.WriteSuccess(w, sharings)
}

// ListAuditEvents returns the tenant's audit trail, newest first
func (h *Handlers) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	lister, ok := h.auditor.(interface {
		ListEvents(ctx context.Context, tenantID string, limit int) ([]audit.Event, error)
	})
	if !ok {
		httputil.WriteNotFound(w, "audit trail is not enabled")
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := lister.ListEvents(r.Context(), tenantID, limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, events)
}
