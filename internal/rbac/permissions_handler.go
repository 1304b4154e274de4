package rbac

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/kaskita/kaskita/internal/platform/httpx"
	"github.com/kaskita/kaskita/internal/shared"
)

// PermissionsView describes what the current principal may do.
type PermissionsView struct {
	UserID         string   `json:"userId"`
	OrganizationID string   `json:"organizationId"`
	Role           string   `json:"role"`
	Permissions    []string `json:"permissions"`
}

// PermissionsHandler exposes the effective permissions of the caller.
type PermissionsHandler struct{}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler() *PermissionsHandler {
	return &PermissionsHandler{}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me/permissions", h.listPermissions)
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	perms := shared.RolePermissions(principal.Role)
	sort.Strings(perms)
	httpx.JSON(w, http.StatusOK, PermissionsView{
		UserID:         principal.UserID.String(),
		OrganizationID: principal.OrganizationID.String(),
		Role:           string(principal.Role),
		Permissions:    perms,
	})
}
