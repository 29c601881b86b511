package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/medrec-api/internal/models"
	"github.com/harentsoaR/medrec-api/internal/services"
	"github.com/harentsoaR/medrec-api/internal/store"
	"github.com/harentsoaR/medrec-api/internal/utils"
)

type received struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

type gatewayFixture struct {
	codec         *utils.TokenCodec
	reg           *MemoryRegistry
	notifications *store.MemoryNotificationStore
	server        *httptest.Server
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	codec := utils.NewTokenCodec([]byte("access-secret"), []byte("refresh-secret"))
	reg := NewMemoryRegistry()
	hub := NewHub(reg, nil, nil)
	notifications := store.NewMemoryNotificationStore()
	gw := NewGateway(GatewayDeps{
		Codec:         codec,
		Hub:           hub,
		Registry:      reg,
		Notifications: services.NewNotificationService(notifications, hub, nil),
	})
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return &gatewayFixture{codec: codec, reg: reg, notifications: notifications, server: srv}
}

func (f *gatewayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, Envelope{Event: event, Data: data}))
}

func recv(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg received
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func (f *gatewayFixture) login(t *testing.T, role models.Role) (*websocket.Conn, string) {
	t.Helper()
	user := &models.User{ID: primitive.NewObjectID(), FirstName: "U", LastName: "Ser", Role: role}
	token, err := f.codec.SignAccessToken(user)
	require.NoError(t, err)

	conn := f.dial(t)
	send(t, conn, EventAuthenticate, map[string]string{"token": token})
	msg := recv(t, conn)
	require.Equal(t, EventAuthenticated, msg.Event)
	require.Equal(t, user.ID.Hex(), msg.Data["userId"])
	return conn, user.ID.Hex()
}

func TestGateway_AuthenticateRejectsBadToken(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t)

	send(t, conn, EventAuthenticate, map[string]string{"token": "garbage"})
	msg := recv(t, conn)

	assert.Equal(t, EventError, msg.Event)
	assert.Equal(t, "Authentication failed", msg.Data["message"])
}

func TestGateway_RequiresAuthentication(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t)

	send(t, conn, EventSendNotification, map[string]string{"recipientId": primitive.NewObjectID().Hex(), "title": "t", "message": "m"})
	msg := recv(t, conn)

	assert.Equal(t, EventError, msg.Event)
	assert.Equal(t, "Not authenticated", msg.Data["message"])
}

func TestGateway_BadJSONKeepsConnection(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{nope")))
	msg := recv(t, conn)
	assert.Equal(t, EventError, msg.Event)

	send(t, conn, "dance", nil)
	msg = recv(t, conn)
	assert.Equal(t, "Unknown event: dance", msg.Data["message"])
}

func TestGateway_SendNotificationReachesRecipient(t *testing.T) {
	f := newGatewayFixture(t)
	doctor, doctorID := f.login(t, models.RoleDoctor)
	patient, patientID := f.login(t, models.RolePatient)

	send(t, doctor, EventSendNotification, map[string]string{
		"recipientId": patientID,
		"title":       "Appointment",
		"message":     "See you Monday",
		"type":        "appointment",
	})
	msg := recv(t, patient)

	assert.Equal(t, EventNewNotification, msg.Event)
	assert.Equal(t, "See you Monday", msg.Data["message"])
	assert.Equal(t, doctorID, msg.Data["sender"])

	pid, err := primitive.ObjectIDFromHex(patientID)
	require.NoError(t, err)
	stored, err := f.notifications.ListByRecipient(context.Background(), pid, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestGateway_PatientCannotSendNotification(t *testing.T) {
	f := newGatewayFixture(t)
	patient, _ := f.login(t, models.RolePatient)
	_, doctorID := f.login(t, models.RoleDoctor)

	send(t, patient, EventSendNotification, map[string]string{
		"recipientId": doctorID,
		"title":       "URGENT",
		"message":     "spoofed",
		"type":        "alert",
	})
	msg := recv(t, patient)

	assert.Equal(t, EventError, msg.Event)
	assert.Equal(t, "Forbidden: insufficient role", msg.Data["message"])

	did, err := primitive.ObjectIDFromHex(doctorID)
	require.NoError(t, err)
	stored, err := f.notifications.ListByRecipient(context.Background(), did, 10)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestGateway_AuthenticateAfterShutdownLeavesNoRoomEntry(t *testing.T) {
	codec := utils.NewTokenCodec([]byte("access-secret"), []byte("refresh-secret"))
	reg := NewMemoryRegistry()
	gw := NewGateway(GatewayDeps{Codec: codec, Hub: NewHub(reg, nil, nil), Registry: reg})

	user := &models.User{ID: primitive.NewObjectID(), FirstName: "U", LastName: "Ser", Role: models.RoleDoctor}
	token, err := codec.SignAccessToken(user)
	require.NoError(t, err)

	cl := newClient(1)
	cl.close()
	gw.onAuthenticate(cl, json.RawMessage(`{"token":"`+token+`"}`))

	assert.Empty(t, reg.Lookup(user.ID.Hex()))
}

func TestGateway_AnalysisResultRelayed(t *testing.T) {
	f := newGatewayFixture(t)
	lab, _ := f.login(t, models.RoleLabTechnician)
	patient, patientID := f.login(t, models.RolePatient)
	doctor, doctorID := f.login(t, models.RoleDoctor)

	send(t, lab, EventNewAnalysisResult, map[string]string{"analysisId": "a-1", "patientId": patientID, "doctorId": doctorID})

	for _, conn := range []*websocket.Conn{patient, doctor} {
		msg := recv(t, conn)
		assert.Equal(t, EventAnalysisUpdate, msg.Event)
		assert.Equal(t, "a-1", msg.Data["analysisId"])
		assert.Equal(t, "ready", msg.Data["status"])
	}
}

func TestGateway_DisconnectLeavesRoom(t *testing.T) {
	f := newGatewayFixture(t)
	conn, uid := f.login(t, models.RolePatient)
	require.Len(t, f.reg.Lookup(uid), 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	assert.Eventually(t, func() bool { return len(f.reg.Lookup(uid)) == 0 }, 2*time.Second, 10*time.Millisecond)
}
