package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harentsoaR/medrec-api/internal/middleware"
	"github.com/harentsoaR/medrec-api/internal/models"
	"github.com/harentsoaR/medrec-api/internal/services"
)

type RegisterUserRequest struct {
	FirstName           string           `json:"firstName"`
	LastName            string           `json:"lastName"`
	Email               string           `json:"email"`
	Password            string           `json:"password"`
	CPassword           string           `json:"cPassword"`
	Phone               string           `json:"phone"`
	Address             []models.Address `json:"address"`
	Role                string           `json:"role"`
	Specialization      string           `json:"specialization"`
	LicenseNumber       string           `json:"licenseNumber"`
	HospitalAffiliation string           `json:"hospitalAffiliation"`
	DateOfBirth         string           `json:"dateOfBirth"`
	Gender              string           `json:"gender"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenRequest carries a refresh token in the body, as {"token": "..."}.
type TokenRequest struct {
	Token string `json:"token"`
}

func sessionBody(message string, s *services.Session) gin.H {
	body := gin.H{
		"user":         models.NewUserView(s.User),
		"accessToken":  s.Tokens.AccessToken,
		"refreshToken": s.Tokens.RefreshToken,
	}
	if message != "" {
		body["message"] = message
	}
	return body
}

func (h *Handler) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if !bindJSON(c, &req) {
		return
	}

	s, err := h.Sessions.Register(c.Request.Context(), services.RegisterInput{
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		Email:               req.Email,
		Password:            req.Password,
		CPassword:           req.CPassword,
		Phone:               req.Phone,
		Address:             req.Address,
		Role:                req.Role,
		Specialization:      req.Specialization,
		LicenseNumber:       req.LicenseNumber,
		HospitalAffiliation: req.HospitalAffiliation,
		DateOfBirth:         req.DateOfBirth,
		Gender:              req.Gender,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionBody("User registered successfully.", s))
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	s, err := h.Sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionBody("Login successful.", s))
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var req TokenRequest
	if !bindJSON(c, &req) {
		return
	}

	s, err := h.Sessions.Refresh(c.Request.Context(), req.Token)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionBody("", s))
}

// RevokeToken drops the refresh token given in the body, or every refresh
// token of the caller when the body is empty.
func (h *Handler) RevokeToken(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "No token provided"})
		return
	}
	var req TokenRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.Sessions.Revoke(c.Request.Context(), claims.Subject, req.Token); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Token revoked successfully"})
}
