package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/harentsoaR/medrec-api/internal/services"
	"github.com/harentsoaR/medrec-api/internal/store"
	"github.com/harentsoaR/medrec-api/internal/utils"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	users := store.NewMemoryUserStore()
	codec := utils.NewTokenCodec([]byte("access-secret"), []byte("refresh-secret"), utils.WithHashCost(bcrypt.MinCost))
	sessions := services.NewSessionManager(services.SessionDeps{
		Users:      users,
		Ledger:     store.NewMemoryRefreshTokenLedger(),
		Codec:      codec,
		BcryptCost: bcrypt.MinCost,
	})
	profiles := services.NewProfileService(services.ProfileDeps{
		Users:    users,
		Images:   store.NewMemoryImageStore(ImagesPath),
		Sessions: sessions,
	})
	notifications := services.NewNotificationService(store.NewMemoryNotificationStore(), nil, nil)

	h := NewHandler(sessions, profiles, notifications, nil)
	r := gin.New()
	h.Routes(r, RouterDeps{Codec: codec, Users: users})
	return r
}

func call(t *testing.T, r http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func registerBody(email, role string) map[string]any {
	body := map[string]any{
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"email":     email,
		"password":  "secret123",
		"cPassword": "secret123",
		"role":      role,
		"address":   []map[string]string{{"street": "1 Main St", "city": "London"}},
	}
	switch role {
	case "doctor":
		body["specialization"] = "Cardiology"
		body["licenseNumber"] = "LIC-42"
	case "patient":
		body["gender"] = "female"
		body["dateOfBirth"] = "1990-12-10"
	}
	return body
}

func register(t *testing.T, r http.Handler, email, role string) (access, refresh, id string) {
	t.Helper()
	w, body := call(t, r, http.MethodPost, "/api/v1/auth/register", "", registerBody(email, role))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	user := body["user"].(map[string]any)
	return body["accessToken"].(string), body["refreshToken"].(string), user["id"].(string)
}

func TestRegisterAndLogin(t *testing.T) {
	r := newTestRouter(t)

	w, body := call(t, r, http.MethodPost, "/api/v1/auth/register", "", registerBody("ada@example.com", "patient"))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "User registered successfully.", body["message"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", user["email"])
	assert.Equal(t, "patient", user["role"])
	assert.NotContains(t, user, "password")
	assert.Nil(t, user["userImage"])
	addr := user["address"].([]any)[0].(map[string]any)
	assert.NotEmpty(t, addr["_id"])

	w, body = call(t, r, http.MethodPost, "/api/v1/auth/register", "", registerBody("ada@example.com", "patient"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email already in use.", body["message"])

	w, body = call(t, r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ada@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Login successful.", body["message"])
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])

	w, body = call(t, r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ada@example.com", "password": "wrong-one"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password.", body["message"])
}

func TestRegister_BadInput(t *testing.T) {
	r := newTestRouter(t)

	w, body := call(t, r, http.MethodPost, "/api/v1/auth/register", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "First name, last name, email, password, and confirm password are required.", body["message"])

	w, body = call(t, r, http.MethodPost, "/api/v1/auth/register", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body.", body["message"])

	doc := registerBody("house@example.com", "doctor")
	delete(doc, "licenseNumber")
	w, body = call(t, r, http.MethodPost, "/api/v1/auth/register", "", doc)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Doctors must provide specialization and license number.", body["message"])
}

func TestRefreshAndRevoke(t *testing.T) {
	r := newTestRouter(t)
	access, refresh, _ := register(t, r, "ada@example.com", "patient")

	w, body := call(t, r, http.MethodPost, "/api/v1/auth/refresh", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Refresh token is required", body["message"])

	w, body = call(t, r, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"token": refresh})
	require.Equal(t, http.StatusOK, w.Code)
	rotated := body["refreshToken"].(string)
	assert.NotEqual(t, refresh, rotated)
	assert.NotNil(t, body["user"])

	w, body = call(t, r, http.MethodPost, "/api/v1/auth/revoke", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "No token provided", body["message"])

	w, body = call(t, r, http.MethodPost, "/api/v1/auth/revoke", access, map[string]string{"token": rotated})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Token revoked successfully", body["message"])

	w, body = call(t, r, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"token": rotated})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Invalid or revoked refresh token", body["message"])
}

func TestProfile(t *testing.T) {
	r := newTestRouter(t)
	access, _, _ := register(t, r, "ada@example.com", "patient")

	w, body := call(t, r, http.MethodGet, "/api/v1/users/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = call(t, r, http.MethodGet, "/api/v1/users/profile", access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Profile fetched successfully.", body["message"])

	w, body = call(t, r, http.MethodPut, "/api/v1/users/editProfile", access, map[string]string{
		"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com", "phone": "0600",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Profile updated successfully.", body["message"])
	assert.Equal(t, access, body["accessToken"])
	assert.NotContains(t, body, "refreshToken")

	w, body = call(t, r, http.MethodPut, "/api/v1/users/editProfile", access, map[string]string{
		"firstName": "Ada", "lastName": "Lovelace", "email": "bad", "phone": "0600",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid email format.", body["message"])
}

func TestEditProfile_MultipartImage(t *testing.T) {
	r := newTestRouter(t)
	access, _, _ := register(t, r, "ada@example.com", "patient")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("firstName", "Augusta"))
	require.NoError(t, mw.WriteField("lastName", "Lovelace"))
	require.NoError(t, mw.WriteField("email", "ada@example.com"))
	require.NoError(t, mw.WriteField("phone", "0600"))
	require.NoError(t, mw.WriteField("address", `[{"street":"2 Side St","city":"Paris"}]`))
	part, err := mw.CreateFormFile("userImage", "me.png")
	require.NoError(t, err)
	_, err = part.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/users/editProfile", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+access)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEqual(t, access, body["accessToken"], "name change reissues tokens")
	assert.NotEmpty(t, body["refreshToken"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "Augusta", user["firstName"])
	imageURL, ok := user["userImage"].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(imageURL, ImagesPath+"/"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, imageURL, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, pngHeader, w.Body.Bytes())
}

func TestNotifications(t *testing.T) {
	r := newTestRouter(t)
	patientToken, _, patientID := register(t, r, "ada@example.com", "patient")
	doctorToken, _, _ := register(t, r, "house@example.com", "doctor")

	note := map[string]string{"recipientId": patientID, "title": "Results", "message": "Ready", "type": "lab_result"}

	w, body := call(t, r, http.MethodPost, "/api/v1/notifications", patientToken, note)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Forbidden: insufficient role", body["message"])

	w, body = call(t, r, http.MethodPost, "/api/v1/notifications", doctorToken, note)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := body["notification"].(map[string]any)["id"].(string)

	w, body = call(t, r, http.MethodGet, "/api/v1/notifications", patientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["notifications"], 1)

	w, _ = call(t, r, http.MethodPatch, "/api/v1/notifications/"+id+"/read", doctorToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = call(t, r, http.MethodPatch, "/api/v1/notifications/"+id+"/read", patientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["notification"].(map[string]any)["read"])
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)

	w, body := call(t, r, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}
