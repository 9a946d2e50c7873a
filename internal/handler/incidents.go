package handlers

import (
	"RiderGuard/internal/auth"
	"RiderGuard/pkg/response"

	"github.com/gin-gonic/gin"
)

type logRequest struct {
	Text string `json:"text"`
}

func (h *Handlers) handleAppendLog(c *gin.Context) {
	id, err := pathUint(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req logRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	res, entry, err := h.Alerts.AppendLog(c.Request.Context(), auth.Current(c), id, req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	res.Reason = h.t(c, res.MessageID)
	response.Created(c, res.Reason, gin.H{"incident": res.Incident, "entry": entry})
}

type caseRefRequest struct {
	Ref string `json:"ref"`
}

func (h *Handlers) handleSetCaseRef(c *gin.Context) {
	id, err := pathUint(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req caseRefRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.Alerts.SetExternalCaseRef(c.Request.Context(), auth.Current(c), id, req.Ref)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.result(c, res, false)
}
