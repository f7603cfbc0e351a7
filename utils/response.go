package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/responses"
	"github.com/rs/zerolog/log"
)

func HandleSuccess(w http.ResponseWriter, response models.ApiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Warn().Err(err).Msg("writing response failed")
	}
}

// HandleError checks the error type and sends an appropriate response.
// Anything that is not an APIError is logged and hidden behind a 500.
func HandleError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorMsg := "Internal Server Error"

	var apiErr responses.APIError
	if errors.As(err, &apiErr) {
		statusCode = apiErr.StatusCode()
		errorMsg = apiErr.Error()
	} else {
		log.Error().Err(err).Msg("unhandled error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(models.ErrorResponse(errorMsg)); err != nil {
		log.Warn().Err(err).Msg("writing error response failed")
	}
}

// Ack builds the acknowledgement for a websocket request. A nil err is a
// success; otherwise the error's stable code is sent.
func Ack(ack *int64, resp models.AckResponse, err error) models.OutboundEnvelope {
	if err != nil {
		resp = models.AckResponse{Error: responses.ErrorCode(err)}
	} else {
		resp.Success = true
	}
	return models.OutboundEnvelope{Event: models.EventAck, Ack: ack, Data: resp}
}
