// Package server implements the receiver control endpoints.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Controller exposes the receiver operations driven by the control
// plane: graceful stop, old block cleanup and split ratio updates.
type Controller interface {
	RequestStop(message string)
	CleanupOldBlocks(thresholdUnixMS int64) error
	UpdateRatioAndRelocation(ratios []float64, relocation map[int]string)
}

type stopRequest struct {
	Message string `json:"message"`
}

type cleanupRequest struct {
	ThresholdUnixMS int64 `json:"threshold_unix_ms"`
}

type ratioRequest struct {
	Ratios     []float64      `json:"ratios"`
	Relocation map[int]string `json:"relocation"`
}

type controlResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// StopHandler returns a handler that triggers a graceful stop of the
// receiver. The response is sent before the drain completes.
func StopHandler(controller Controller, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req stopRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeControlError(w, logger, http.StatusBadRequest, err)
			return
		}
		if req.Message == "" {
			req.Message = "stop requested via control endpoint"
		}

		logger.Info("stop requested", "message", req.Message)
		controller.RequestStop(req.Message)

		writeControlOK(w, logger, http.StatusAccepted)
	}
}

// CleanupHandler returns a handler that removes blocks stored before
// the given threshold.
func CleanupHandler(controller Controller, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req cleanupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeControlError(w, logger, http.StatusBadRequest, err)
			return
		}
		if req.ThresholdUnixMS <= 0 {
			writeControlError(w, logger, http.StatusBadRequest, errThresholdRequired)
			return
		}

		logger.Info("cleanup requested", "threshold_unix_ms", req.ThresholdUnixMS)
		if err := controller.CleanupOldBlocks(req.ThresholdUnixMS); err != nil {
			writeControlError(w, logger, http.StatusInternalServerError, err)
			return
		}

		writeControlOK(w, logger, http.StatusOK)
	}
}

// RatioHandler returns a handler that installs new split ratios and a
// relocation table on the receiver.
func RatioHandler(controller Controller, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req ratioRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeControlError(w, logger, http.StatusBadRequest, err)
			return
		}
		for _, ratio := range req.Ratios {
			if ratio < 0 || ratio > 1 {
				writeControlError(w, logger, http.StatusBadRequest, errRatioOutOfRange)
				return
			}
		}

		logger.Info("ratio update requested",
			"ratios", req.Ratios,
			"relocation_entries", len(req.Relocation),
		)
		controller.UpdateRatioAndRelocation(req.Ratios, req.Relocation)

		writeControlOK(w, logger, http.StatusOK)
	}
}

type controlError string

func (e controlError) Error() string { return string(e) }

const (
	errThresholdRequired controlError = "threshold_unix_ms must be positive"
	errRatioOutOfRange   controlError = "ratios must be within [0, 1]"
)

func writeControlOK(w http.ResponseWriter, logger *slog.Logger, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := controlResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode control response", "error", err)
	}
}

func writeControlError(w http.ResponseWriter, logger *slog.Logger, statusCode int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := controlResponse{
		Status:    "error",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Error:     err.Error(),
	}
	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		logger.Error("failed to encode control response", "error", encodeErr)
	}
}
