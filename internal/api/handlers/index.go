package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/quotedesk/internal/api"
	"github.com/cloo-solutions/quotedesk/internal/domain"
	"github.com/cloo-solutions/quotedesk/internal/service"
)

type IndexStatusService interface {
	Status(ctx context.Context) (*service.IndexStatus, error)
}

// IndexHandler reports how far the vector index lags the chunk store.
type IndexHandler struct {
	svc IndexStatusService
}

func NewIndexHandler(svc IndexStatusService) *IndexHandler {
	return &IndexHandler{svc: svc}
}

type IndexStatusResponse struct {
	Stored      int  `json:"stored"`
	Indexed     int  `json:"indexed"`
	Dimension   int  `json:"dimension"`
	Stale       bool `json:"stale"`
	NeedsReload bool `json:"needs_reload"`
}

func (h *IndexHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Status(r.Context())
	if err != nil {
		api.HandleError(w, domain.NewDomainErrorWithCause(domain.ErrCodeUpstream, "index status unavailable", err))
		return
	}
	api.Success(w, http.StatusOK, IndexStatusResponse{
		Stored:      status.Stored,
		Indexed:     status.Indexed,
		Dimension:   status.Dimension,
		Stale:       status.Stale,
		NeedsReload: status.NeedsReload(),
	})
}
