package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/tabletab/api/internal/gateway"
	"github.com/tabletab/api/internal/service"
)

// writeServiceError maps a service error onto an HTTP status. Anything
// unrecognized is a 500 and gets logged; known errors surface their
// message to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrTabNotFound),
		errors.Is(err, service.ErrPaymentNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})

	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrTabNotOpen),
		errors.Is(err, service.ErrTabSettling),
		errors.Is(err, service.ErrOpenTabExists),
		errors.Is(err, service.ErrOrderOnAnotherTab),
		errors.Is(err, service.ErrOrderCancelled),
		errors.Is(err, service.ErrAlreadyPaid):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})

	case errors.Is(err, gateway.ErrGateway):
		log.Printf("ERROR: payment gateway: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "payment provider unavailable"})

	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})

	default:
		log.Printf("ERROR: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func isValidationError(err error) bool {
	validationErrs := []error{
		service.ErrEmptyItems,
		service.ErrInvalidOrderType,
		service.ErrInvalidQuantity,
		service.ErrInvalidMenuItemID,
		service.ErrMenuItemNotFound,
		service.ErrMissingIdentity,
		service.ErrConflictingIdentity,
		service.ErrMissingGuestContact,
		service.ErrMissingTableNumber,
		service.ErrMissingPickupTime,
		service.ErrInvalidPickupTime,
		service.ErrMissingAddress,
		service.ErrInvalidTip,
		service.ErrInvalidDiscount,
	}
	for _, target := range validationErrs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
