package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatewarden/gatewarden/internal/platform/httpx"
)

// Handler wires the JSON admin and check endpoints. When
// adminPermission is non-empty the mutation routes additionally require
// the acting user to hold it; the check endpoint stays open to any
// authenticated caller.
type Handler struct {
	logger          *slog.Logger
	service         *Service
	checker         *Checker
	guard           Middleware
	adminPermission string
	validator       *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, checker *Checker, guard Middleware, adminPermission string) *Handler {
	return &Handler{
		logger:          logger,
		service:         service,
		checker:         checker,
		guard:           guard,
		adminPermission: adminPermission,
		validator:       validator.New(),
	}
}

// MountRoutes registers the API under the given router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.ActorContext)

	r.Post("/check", h.check)

	r.Group(func(r chi.Router) {
		if h.adminPermission != "" {
			r.Use(h.guard.RequireAny(h.adminPermission))
		}
		r.Route("/roles", func(r chi.Router) {
			r.Get("/", h.listRoles)
			r.Post("/", h.createRole)
			r.Route("/{roleID}", func(r chi.Router) {
				r.Get("/", h.getRole)
				r.Patch("/", h.updateRole)
				r.Delete("/", h.deleteRole)
				r.Post("/inherits", h.setInheritance)
				r.Delete("/inherits/{parentID}", h.removeInheritance)
			})
		})
		r.Route("/permissions", func(r chi.Router) {
			r.Get("/", h.listPermissions)
			r.Post("/", h.createPermission)
			r.Delete("/{key}", h.deletePermission)
		})
		r.Route("/subjects/{subjectType}/{subjectID}/grants", func(r chi.Router) {
			r.Post("/", h.assignPermission)
			r.Delete("/{key}", h.unassignPermission)
		})
		r.Route("/users/{userID}/roles", func(r chi.Router) {
			r.Post("/", h.assignRole)
			r.Delete("/{roleID}", h.unassignRole)
		})
	})
}

type roleResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
	IsDefault   bool   `json:"is_default"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Priority:    role.Priority,
		IsDefault:   role.IsDefault,
	}
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]roleResponse, len(roles))
	for i, role := range roles {
		out[i] = toRoleResponse(role)
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=128"`
	Description string `json:"description" validate:"max=512"`
	Priority    int    `json:"priority"`
	IsDefault   bool   `json:"is_default"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description, req.Priority, req.IsDefault)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), roleID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

type updateRoleRequest struct {
	Description string `json:"description" validate:"max=512"`
	Priority    int    `json:"priority"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req updateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), roleID, req.Description, req.Priority)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), roleID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setInheritanceRequest struct {
	ParentID int64 `json:"parent_id" validate:"required,gt=0"`
	Priority int   `json:"priority"`
}

func (h *Handler) setInheritance(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req setInheritanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetRoleInheritance(r.Context(), roleID, req.ParentID, req.Priority); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeInheritance(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	parentID, ok := h.pathID(w, r, "parentID")
	if !ok {
		return
	}
	removed, err := h.service.RemoveRoleInheritance(r.Context(), roleID, parentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !removed {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "inheritance edge does not exist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]permissionResponse, len(perms))
	for i, perm := range perms {
		out[i] = permissionResponse{ID: perm.ID, Key: perm.Key, Description: perm.Description, Category: perm.Category}
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createPermissionRequest struct {
	Key         string `json:"key" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=512"`
	Category    string `json:"category" validate:"max=128"`
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Key, req.Description, req.Category)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, permissionResponse{ID: perm.ID, Key: perm.Key, Description: perm.Description, Category: perm.Category})
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.service.DeletePermission(r.Context(), key); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignPermissionRequest struct {
	Key     string `json:"key" validate:"required,min=1,max=255"`
	Granted *bool  `json:"granted" validate:"required"`
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.pathSubject(w, r)
	if !ok {
		return
	}
	var req assignPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AssignPermission(r.Context(), subject, req.Key, *req.Granted); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unassignPermission(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.pathSubject(w, r)
	if !ok {
		return
	}
	removed, err := h.service.UnassignPermission(r.Context(), subject, chi.URLParam(r, "key"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !removed {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "grant does not exist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AssignRole(r.Context(), userID, req.RoleID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unassignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	removed, err := h.service.UnassignRole(r.Context(), userID, roleID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !removed {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "membership does not exist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkRequest struct {
	SubjectType string `json:"subject_type" validate:"required"`
	SubjectID   int64  `json:"subject_id" validate:"required,gt=0"`
	Permission  string `json:"permission" validate:"required,min=1,max=255"`
}

type checkResponse struct {
	Granted bool `json:"granted"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, &req) {
		return
	}
	kind, err := ParseSubjectKind(req.SubjectType)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var granted bool
	switch kind {
	case SubjectUser:
		granted, err = h.checker.CheckUserPermission(r.Context(), req.SubjectID, req.Permission)
	case SubjectRole:
		granted, err = h.checker.CheckRolePermission(r.Context(), req.SubjectID, req.Permission)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Granted: granted})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", "request body must be valid JSON")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Error())
		} else {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request")
		}
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) pathSubject(w http.ResponseWriter, r *http.Request) (Subject, bool) {
	kind, err := ParseSubjectKind(chi.URLParam(r, "subjectType"))
	if err != nil {
		h.respondError(w, err)
		return Subject{}, false
	}
	id, ok := h.pathID(w, r, "subjectID")
	if !ok {
		return Subject{}, false
	}
	return Subject{Kind: kind, ID: id}, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyExists):
		httpx.Problem(w, http.StatusConflict, "Already Exists", err.Error())
	case errors.Is(err, ErrAlreadyAssigned):
		httpx.Problem(w, http.StatusConflict, "Already Assigned", err.Error())
	case errors.Is(err, ErrCircularDependency):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Circular Inheritance", err.Error())
	case errors.Is(err, ErrInvalidArgument):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	default:
		h.logger.Error("authz handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
