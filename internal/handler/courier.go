package handlers

import (
	"strings"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/models"
	"RiderGuard/internal/trajectory"
	errs "RiderGuard/pkg/errors"
	"RiderGuard/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type locationRequest struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Accuracy *float64 `json:"accuracy"`
	Speed    *float64 `json:"speed"`
	// set while an alert is open so the fix joins its trajectory
	AlertID string `json:"alert_id"`
}

// handleLocation updates the courier's last position. With an alert id the
// fix goes through the trajectory path, exactly like the websocket command.
func (h *Handlers) handleLocation(c *gin.Context) {
	var req locationRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if req.Lat == nil || req.Lon == nil {
		h.fail(c, errs.Validation("lat and lon are required"))
		return
	}
	actor := auth.Current(c)
	ctx := c.Request.Context()

	if req.AlertID == "" {
		profile, err := h.Ingest.TrackCourier(ctx, actor.UserID, *req.Lat, *req.Lon)
		if err != nil {
			h.fail(c, err)
			return
		}
		response.Success(c, h.t(c, "location.updated"), profile)
		return
	}

	alertID, err := uuid.Parse(req.AlertID)
	if err != nil {
		h.fail(c, errs.Validation("invalid alert id %q", req.AlertID))
		return
	}
	sample, err := h.Ingest.IngestFrom(ctx, actor, alertID, trajectory.Sample{
		Lat: *req.Lat, Lon: *req.Lon, Accuracy: req.Accuracy, Speed: req.Speed,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if sample == nil {
		response.Success(c, h.t(c, "location.dropped"), gin.H{"recorded": false})
		return
	}
	response.Success(c, h.t(c, "location.updated"), gin.H{"recorded": true, "sample": sample})
}

type batteryRequest struct {
	Level *int `json:"level"`
}

func (h *Handlers) handleBattery(c *gin.Context) {
	var req batteryRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if req.Level == nil {
		h.fail(c, errs.Validation("level is required"))
		return
	}
	profile, err := h.Presence.SetBattery(c.Request.Context(), auth.Current(c).UserID, *req.Level)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, h.t(c, "battery.updated"), profile)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handlers) handleStatus(c *gin.Context) {
	var req statusRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	status := models.CourierStatus(strings.TrimSpace(req.Status))
	profile, err := h.Presence.SetStatus(c.Request.Context(), auth.Current(c).UserID, status)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, h.t(c, "status.updated"), profile)
}

func (h *Handlers) handleOwnProfile(c *gin.Context) {
	profile, err := h.Presence.Snapshot(c.Request.Context(), auth.Current(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "ok", profile)
}

func (h *Handlers) handleCourierProfile(c *gin.Context) {
	id, err := pathUint(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	profile, err := h.Presence.Snapshot(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "ok", profile)
}

func (h *Handlers) handleListContacts(c *gin.Context) {
	contacts, err := models.ListTrustedContacts(h.DB.WithContext(c.Request.Context()), auth.Current(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "ok", contacts)
}

type contactRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	PushAlias    string `json:"push_alias"`
	Relationship string `json:"relationship"`
}

func (h *Handlers) handleCreateContact(c *gin.Context) {
	var req contactRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" {
		h.fail(c, errs.Validation("name is required"))
		return
	}
	if req.Phone == "" && req.PushAlias == "" {
		h.fail(c, errs.Validation("a phone or a push alias is required"))
		return
	}
	contact := &models.TrustedContact{
		CourierID:    auth.Current(c).UserID,
		Name:         req.Name,
		Phone:        req.Phone,
		PushAlias:    strings.TrimSpace(req.PushAlias),
		Relationship: strings.TrimSpace(req.Relationship),
		Active:       true,
	}
	if err := models.CreateTrustedContact(h.DB.WithContext(c.Request.Context()), contact); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, h.t(c, "contact.created"), contact)
}
