package handlers

import (
	"net/http"

	"github.com/vango-go/carelive/pkg/gateway/apierror"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	apierror.Write(w, http.StatusNotFound, &apierror.Error{
		Type:      apierror.TypeNotFound,
		Message:   "not found",
		RequestID: requestIDFromContext(r.Context()),
	})
}
