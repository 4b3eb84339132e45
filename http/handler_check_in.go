package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"attendance/entity"
)

type checkInRequest struct {
	ActorID string `json:"actor_id"`
}

type checkInResponse struct {
	Record           entity.CheckInRecord `json:"record"`
	Credential       entity.Credential    `json:"credential"`
	AlreadyCheckedIn bool                 `json:"already_checked_in"`
}

type purchaseCredentialsResponse struct {
	Issued  int    `json:"issued"`
	Missing []int  `json:"missing,omitempty"`
	Error   string `json:"error,omitempty"`
}

func bindActor(c echo.Context) (string, error) {
	var r checkInRequest
	if err := c.Bind(&r); err != nil {
		return "", err
	}
	if r.ActorID == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "actor_id is required")
	}
	return r.ActorID, nil
}

func (s Server) PostCredentialCheckIn(c echo.Context) error {
	actorID, err := bindActor(c)
	if err != nil {
		return err
	}

	result, err := s.checkIns.CheckIn(c.Request().Context(), c.Param("credential_id"), actorID)
	if err != nil {
		return httpError(fmt.Errorf("failed to check in credential: %w", err))
	}

	return c.JSON(http.StatusOK, checkInResponse(result))
}

func (s Server) PostPurchaseCheckIn(c echo.Context) error {
	actorID, err := bindActor(c)
	if err != nil {
		return err
	}

	result, err := s.checkIns.CheckInPurchase(c.Request().Context(), c.Param("purchase_id"), actorID)
	if err != nil {
		return httpError(fmt.Errorf("failed to check in purchase: %w", err))
	}

	return c.JSON(http.StatusOK, checkInResponse(result))
}

func (s Server) PostNoShow(c echo.Context) error {
	actorID, err := bindActor(c)
	if err != nil {
		return err
	}

	if _, err := s.checkIns.MarkNoShow(c.Request().Context(), c.Param("purchase_id"), actorID); err != nil {
		return httpError(fmt.Errorf("failed to mark no-show: %w", err))
	}

	return c.NoContent(http.StatusNoContent)
}

func (s Server) PostPurchaseCredentials(c echo.Context) error {
	issued, err := s.planner.EnsureCredentials(c.Request().Context(), c.Param("purchase_id"))

	var partial *entity.PartialBackfillError
	if errors.As(err, &partial) {
		return c.JSON(http.StatusMultiStatus, purchaseCredentialsResponse{
			Issued:  partial.Issued,
			Missing: partial.Missing,
			Error:   partial.Err.Error(),
		})
	}
	if err != nil {
		return httpError(fmt.Errorf("failed to issue credentials: %w", err))
	}

	return c.JSON(http.StatusOK, purchaseCredentialsResponse{Issued: issued})
}
