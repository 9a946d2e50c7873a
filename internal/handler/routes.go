package handlers

import (
	"RiderGuard/internal/auth"
	"RiderGuard/internal/routing"
	errs "RiderGuard/pkg/errors"
	"RiderGuard/pkg/response"

	"github.com/gin-gonic/gin"
)

type routeRequest struct {
	Origin      *routing.Point `json:"origin"`
	Destination *routing.Point `json:"destination"`
}

func (h *Handlers) handleRequestRoutes(c *gin.Context) {
	if h.Routes == nil {
		h.fail(c, errs.Transient(nil, "route planning is not configured"))
		return
	}
	var req routeRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if req.Origin == nil || req.Destination == nil {
		h.fail(c, errs.Validation("origin and destination are required"))
		return
	}
	offer, err := h.Routes.Request(c.Request.Context(), auth.Current(c), *req.Origin, *req.Destination)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, "ok", offer)
}

type selectRequest struct {
	Variant string `json:"variant"`
}

func (h *Handlers) handleSelectRoute(c *gin.Context) {
	if h.Routes == nil {
		h.fail(c, errs.Transient(nil, "route planning is not configured"))
		return
	}
	id, err := pathUint(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req selectRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	route, err := h.Routes.Select(c.Request.Context(), auth.Current(c), id, req.Variant)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, h.t(c, "route.selected"), route)
}
