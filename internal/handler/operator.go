package handlers

import (
	"strings"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/models"
	errs "RiderGuard/pkg/errors"
	"RiderGuard/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type noticeRequest struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

func (h *Handlers) handleNotice(c *gin.Context) {
	var req noticeRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Alerts.Notice(auth.Current(c), strings.TrimSpace(req.Message), req.Level); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, h.t(c, "notice.published"), nil)
}

type userRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// handleCreateUser registers an account. Couriers get their safety profile
// in the same transaction.
func (h *Handlers) handleCreateUser(c *gin.Context) {
	var req userRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.fail(c, errs.Validation("name is required"))
		return
	}
	switch req.Role {
	case models.RoleCourier, models.RoleOperator, models.RoleAdministrator:
	default:
		h.fail(c, errs.Validation("unknown role %q", req.Role))
		return
	}

	user := &models.User{
		Name:   req.Name,
		Phone:  strings.TrimSpace(req.Phone),
		Email:  strings.TrimSpace(req.Email),
		Role:   req.Role,
		Active: true,
	}
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := models.CreateUser(tx, user); err != nil {
			return err
		}
		if user.Role == models.RoleCourier {
			_, err := models.CreateProfile(tx, user.ID)
			return err
		}
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, "ok", user)
}

// handleIssueToken mints an access token for an existing active user.
func (h *Handlers) handleIssueToken(c *gin.Context) {
	id, err := pathUint(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	user, err := models.GetUser(h.DB.WithContext(c.Request.Context()), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !user.Active {
		h.fail(c, errs.Validation("user %d is inactive", id))
		return
	}
	token, err := h.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "ok", gin.H{"token": token, "user_id": user.ID, "role": user.Role})
}
