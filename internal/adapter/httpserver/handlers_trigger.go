package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/adrelay/internal/platform/errors"
)

type notifySubmitterRequest struct {
	UserID string `json:"userId"`
}

type sendNotificationRequest struct {
	UserID       string          `json:"userId"`
	Notification json.RawMessage `json:"notification"`
}

type reviewersResponse struct {
	Success   bool `json:"success"`
	Delivered int  `json:"delivered"`
}

type submitterResponse struct {
	Success   bool `json:"success"`
	Delivered bool `json:"delivered"`
}

type sendResponse struct {
	Success bool `json:"success"`
}

var nullJSON = []byte("null")

// handleNotifyReviewers ignores any request body.
func (s *InternalServer) handleNotifyReviewers(c echo.Context) error {
	delivered := s.triggers.RefreshReviewerDashboards(c.Request().Context())

	if err := c.JSON(http.StatusOK, reviewersResponse{Success: true, Delivered: delivered}); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (s *InternalServer) handleNotifySubmitter(c echo.Context) error {
	var req notifySubmitterRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	if req.UserID == "" {
		return apperrors.ValidationError("userId is required").WithField("field", "userId")
	}

	delivered := s.triggers.RefreshSubmitterDashboard(c.Request().Context(), req.UserID)

	if err := c.JSON(http.StatusOK, submitterResponse{Success: true, Delivered: delivered}); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (s *InternalServer) handleSendNotification(c echo.Context) error {
	var req sendNotificationRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	if req.UserID == "" {
		return apperrors.ValidationError("userId is required").WithField("field", "userId")
	}
	if len(req.Notification) == 0 || bytes.Equal(req.Notification, nullJSON) {
		return apperrors.ValidationError("notification is required").WithField("field", "notification")
	}

	if !s.triggers.PushNotification(c.Request().Context(), req.UserID, req.Notification) {
		return apperrors.NotFoundError("user not connected").WithField("userId", req.UserID)
	}

	if err := c.JSON(http.StatusOK, sendResponse{Success: true}); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (s *InternalServer) handleStats(c echo.Context) error {
	stats, err := s.triggers.Stats(c.Request().Context())
	if err != nil {
		return apperrors.UnavailableError("relay is not running", err)
	}

	if err := c.JSON(http.StatusOK, stats); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// decodeJSON reads exactly one JSON object from the body.
// Content-Type is not enforced; backend callers do not always set it.
func decodeJSON(c echo.Context, dst any) error {
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.ValidationError("request body is required")
		}
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return apperrors.ValidationError("request body is not valid JSON").WithField("detail", err.Error())
	}
	if dec.More() {
		return apperrors.ValidationError("request body must contain a single JSON object")
	}
	return nil
}
