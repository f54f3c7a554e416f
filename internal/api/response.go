package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"marketplace-bff/internal/apperr"
	"marketplace-bff/internal/models"
	"marketplace-bff/internal/mutation"
	"marketplace-bff/internal/query"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dataEnvelope struct {
	Data         any                    `json:"data"`
	Notification *mutation.Notification `json:"notification,omitempty"`
}

type errorEnvelope struct {
	Error        errorBody              `json:"error"`
	Notification *mutation.Notification `json:"notification,omitempty"`
}

// section is one query's state inside a page response.
type section[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
	Error  string `json:"error,omitempty"`
}

func sectionOf[T any](res query.Result[T]) section[T] {
	s := section[T]{Status: res.Status.String(), Data: res.Data}
	if res.IsLoading {
		s.Status = query.StatusLoading.String()
	}
	if res.Err != nil {
		s.Error = messageOf(res.Err)
	}
	return s
}

// listOr replaces a failed list query with an empty list so the rest of the
// page still renders.
func listOr[T any](res query.Result[[]T], logger *slog.Logger, what string) section[[]T] {
	s := sectionOf(res)
	if s.Data == nil {
		s.Data = []T{}
	}
	if res.Err != nil {
		logger.Warn("List fetch failed, serving empty list", "list", what, "error", res.Err)
	}
	return s
}

type productView struct {
	models.ProductListing
	PriceLabel string `json:"priceLabel"`
}

func viewProduct(p models.ProductListing) productView {
	return productView{ProductListing: p, PriceLabel: p.Price.Label()}
}

func viewProducts(ps []models.ProductListing) []productView {
	out := make([]productView, 0, len(ps))
	for _, p := range ps {
		out = append(out, viewProduct(p))
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("JSON encode error", "error", err)
	}
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data any) {
	h.writeJSON(w, status, dataEnvelope{Data: data})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeErrorNotified(w, err, nil)
}

func (h *Handler) writeErrorNotified(w http.ResponseWriter, err error, n *mutation.Notification) {
	status := statusOf(err)
	body := errorBody{Code: "INTERNAL", Message: "Internal Server Error"}
	if appErr, ok := apperr.As(err); ok {
		body = errorBody{Code: appErr.ErrorCode(), Message: appErr.Message()}
	} else {
		h.logger.Error("Unhandled error", "error", err)
	}
	h.writeJSON(w, status, errorEnvelope{Error: body, Notification: n})
}

func writeOutcome[Out any](h *Handler, w http.ResponseWriter, status int, out mutation.Outcome[Out], view func(Out) any) {
	n := out.Notification
	if out.Err != nil {
		h.writeErrorNotified(w, out.Err, &n)
		return
	}
	var data any = out.Data
	if view != nil {
		data = view(out.Data)
	}
	h.writeJSON(w, status, dataEnvelope{Data: data, Notification: &n})
}

// statusOf passes 4xx answers from the marketplace service through so the
// client sees "forbidden" rather than "bad gateway".
func statusOf(err error) int {
	var remote *apperr.RemoteError
	if errors.As(err, &remote) && remote.Status >= 400 && remote.Status < 500 {
		return remote.Status
	}
	if appErr, ok := apperr.As(err); ok {
		return appErr.HTTPCode()
	}
	return http.StatusInternalServerError
}

func messageOf(err error) string {
	if appErr, ok := apperr.As(err); ok {
		return appErr.Message()
	}
	return "Something went wrong"
}
