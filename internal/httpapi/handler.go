package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"offersync/internal/models"
	"offersync/internal/offers"
)

type Handler struct {
	Engine *offers.Engine
}

func NewHandler(engine *offers.Engine) *Handler {
	return &Handler{Engine: engine}
}

type offersResponse struct {
	Offers []models.Offer `json:"offers"`
}

func (h *Handler) BuyerOffers(w http.ResponseWriter, r *http.Request) {
	h.listOffers(w, r, "buyerId", h.Engine.LoadBuyerOffers)
}

func (h *Handler) SupplierOffers(w http.ResponseWriter, r *http.Request) {
	h.listOffers(w, r, "supplierId", h.Engine.LoadSupplierOffers)
}

func (h *Handler) listOffers(w http.ResponseWriter, r *http.Request, param string,
	load func(ctx context.Context, actorID string, opts ...offers.LoadOption) ([]models.Offer, error)) {
	actorID := chi.URLParam(r, param)

	var opts []offers.LoadOption
	if r.URL.Query().Get("force") == "true" {
		opts = append(opts, offers.ForceNetwork())
	}

	list, err := load(r.Context(), actorID, opts...)
	if err != nil {
		if errors.Is(err, offers.ErrMissingActorID) {
			writeError(w, http.StatusBadRequest, "missing actor id")
			return
		}
		writeError(w, http.StatusBadGateway, "load offers failed")
		return
	}
	if list == nil {
		list = []models.Offer{}
	}
	writeJSON(w, http.StatusOK, offersResponse{Offers: list})
}

func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	reply, err := h.Engine.CreateOffer(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, offers.ErrInvalidOffer):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, offers.ErrLimitReached):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, offers.ErrDuplicatePending):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "create offer failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	offerID := chi.URLParam(r, "offerId")
	if err := h.Engine.AcceptOffer(r.Context(), offerID); err != nil {
		writeError(w, http.StatusInternalServerError, "accept offer failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectOffer(w http.ResponseWriter, r *http.Request) {
	offerID := chi.URLParam(r, "offerId")
	var req rejectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := h.Engine.RejectOffer(r.Context(), offerID, req.Reason); err != nil {
		writeError(w, http.StatusInternalServerError, "reject offer failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (h *Handler) CancelOffer(w http.ResponseWriter, r *http.Request) {
	offerID := chi.URLParam(r, "offerId")
	if err := h.Engine.CancelOffer(r.Context(), offerID); err != nil {
		writeError(w, http.StatusInternalServerError, "cancel offer failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type reserveRequest struct {
	OrderID string `json:"order_id"`
}

func (h *Handler) ReserveOffer(w http.ResponseWriter, r *http.Request) {
	offerID := chi.URLParam(r, "offerId")
	var req reserveRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := h.Engine.MarkReserved(r.Context(), offerID, req.OrderID); err != nil {
		writeError(w, http.StatusInternalServerError, "reserve offer failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reserved"})
}

func (h *Handler) DeleteOffer(w http.ResponseWriter, r *http.Request) {
	offerID := chi.URLParam(r, "offerId")
	if offerID == "" {
		writeError(w, http.StatusBadRequest, "missing offer id")
		return
	}
	if err := h.Engine.DeleteOffer(r.Context(), offerID); err != nil {
		writeError(w, http.StatusInternalServerError, "delete offer failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ValidateLimits(w http.ResponseWriter, r *http.Request) {
	var q offers.LimitsQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	writeJSON(w, http.StatusOK, h.Engine.ValidateLimits(r.Context(), q))
}
