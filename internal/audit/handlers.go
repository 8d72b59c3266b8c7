package audit

import (
	"net/http"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes the audit trail to administrators.
type Handler struct {
	Store Store
}

// List handles GET /api/v1/audit-logs.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 50, 200)
	offset := (page - 1) * perPage
	entries, total, err := h.Store.List(r.Context(), perPage, offset)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	common.SuccessPage(w, "audit logs fetched", entries, common.NewPagination(page, perPage, total))
}
