package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/harentsoaR/medrec-api/internal/middleware"
	"github.com/harentsoaR/medrec-api/internal/models"
	"github.com/harentsoaR/medrec-api/internal/services"
)

type EditProfileRequest struct {
	FirstName string           `json:"firstName"`
	LastName  string           `json:"lastName"`
	Email     string           `json:"email"`
	Phone     string           `json:"phone"`
	Address   []models.Address `json:"address"`
}

// GetProfile returns the user loaded by HydrateUser.
func (h *Handler) GetProfile(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Profile fetched successfully.",
		"user":    models.NewUserView(user),
	})
}

// EditProfile accepts either JSON or multipart/form-data. In the multipart
// form, address is a JSON array and the picture goes in the userImage part.
func (h *Handler) EditProfile(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Not authenticated"})
		return
	}

	var in services.EditProfileInput
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		if !h.readProfileForm(c, &in) {
			return
		}
	} else {
		var req EditProfileRequest
		if !bindJSON(c, &req) {
			return
		}
		in = services.EditProfileInput{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Phone:     req.Phone,
			Address:   req.Address,
		}
	}

	res, err := h.Profiles.EditProfile(c.Request.Context(), user, middleware.AccessTokenFrom(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	body := gin.H{
		"message":     "Profile updated successfully.",
		"user":        models.NewUserView(res.User),
		"accessToken": res.AccessToken,
	}
	if res.RefreshToken != "" {
		body["refreshToken"] = res.RefreshToken
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) readProfileForm(c *gin.Context, in *services.EditProfileInput) bool {
	in.FirstName = c.PostForm("firstName")
	in.LastName = c.PostForm("lastName")
	in.Email = c.PostForm("email")
	in.Phone = c.PostForm("phone")

	if raw := strings.TrimSpace(c.PostForm("address")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Address); err != nil {
			badRequest(c, "Invalid address format.")
			return false
		}
	}

	fh, err := c.FormFile("userImage")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return true
	case err != nil:
		badRequest(c, "Invalid request body.")
		return false
	}
	if fh.Size > h.MaxUploadBytes {
		badRequest(c, "Image is too large.")
		return false
	}

	f, err := fh.Open()
	if err != nil {
		h.respondError(c, err)
		return false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.MaxUploadBytes+1))
	if err != nil {
		h.respondError(c, err)
		return false
	}
	if int64(len(data)) > h.MaxUploadBytes {
		badRequest(c, "Image is too large.")
		return false
	}
	in.Image = &services.ImageUpload{Filename: fh.Filename, Data: data}
	return true
}

// GetProfileImage streams a stored profile picture.
func (h *Handler) GetProfileImage(c *gin.Context) {
	rc, contentType, err := h.Profiles.OpenImage(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "public, max-age=86400")
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}
