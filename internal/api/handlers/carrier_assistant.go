package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/quotedesk/internal/api"
	"github.com/cloo-solutions/quotedesk/internal/domain"
	"github.com/cloo-solutions/quotedesk/internal/service"
)

// FailureConditions is the conditions text of the Refer answer returned when
// the pipeline cannot complete.
const FailureConditions = "Refer: the carrier assistant could not check the guidelines for this question. Please try again or refer to underwriting."

type CarrierAssistantService interface {
	Ask(ctx context.Context, in service.AskInput) (*domain.AnswerResult, error)
}

type CarrierAssistantHandler struct {
	svc CarrierAssistantService
}

func NewCarrierAssistantHandler(svc CarrierAssistantService) *CarrierAssistantHandler {
	return &CarrierAssistantHandler{svc: svc}
}

type AskRequest struct {
	Carrier  string `json:"carrier"`
	LOB      string `json:"lob"`
	State    string `json:"state"`
	Program  string `json:"program,omitempty"`
	Version  string `json:"version,omitempty"`
	Question string `json:"question"`
}

// FailureResponse is a Refer answer plus the failure that caused it.
type FailureResponse struct {
	*domain.AnswerResult
	Error string `json:"error"`
}

func (h *CarrierAssistantHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Ask(r.Context(), service.AskInput{
		Question: req.Question,
		Filters: domain.Filters{
			Carrier: req.Carrier,
			LOB:     req.LOB,
			State:   req.State,
			Program: req.Program,
			Version: req.Version,
		},
	})
	if err != nil {
		status := api.DomainErrorToHTTP(err)
		if status == http.StatusBadRequest {
			api.HandleError(w, err)
			return
		}
		api.JSON(w, status, FailureResponse{
			AnswerResult: domain.ReferResult(FailureConditions),
			Error:        api.ErrorMessage(err),
		})
		return
	}

	api.JSON(w, http.StatusOK, result)
}
