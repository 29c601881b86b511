package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harentsoaR/medrec-api/internal/metrics"
	"github.com/harentsoaR/medrec-api/internal/models"
	"github.com/harentsoaR/medrec-api/internal/services"
	"github.com/harentsoaR/medrec-api/internal/utils"
)

const (
	defaultSendQueue    = 64
	defaultWriteTimeout = 5 * time.Second
	maxFrameBytes       = 64 << 10
)

// NotificationCreator persists a notification and pushes it to its recipient.
type NotificationCreator interface {
	Create(ctx context.Context, in services.CreateNotificationInput) (*models.Notification, error)
}

type GatewayDeps struct {
	Codec          *utils.TokenCodec
	Hub            *Hub
	Registry       Registry
	Notifications  NotificationCreator
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	SendQueue      int
}

// Gateway is the websocket entrypoint. A connection joins its user's room
// once it authenticates with an access token.
type Gateway struct {
	codec         *utils.TokenCodec
	hub           *Hub
	reg           Registry
	notifications NotificationCreator
	log           *zap.Logger
	metrics       *metrics.Metrics

	originPatterns []string
	anyOrigin      bool
	sendQueue      int
	writeTimeout   time.Duration
}

func NewGateway(d GatewayDeps) *Gateway {
	g := &Gateway{
		codec:         d.Codec,
		hub:           d.Hub,
		reg:           d.Registry,
		notifications: d.Notifications,
		log:           d.Logger,
		metrics:       d.Metrics,
		sendQueue:     d.SendQueue,
		writeTimeout:  defaultWriteTimeout,
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	if g.sendQueue <= 0 {
		g.sendQueue = defaultSendQueue
	}
	for _, o := range d.AllowedOrigins {
		if o == "*" {
			g.anyOrigin = true
			continue
		}
		// websocket.Accept matches on host, not on the full origin.
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			g.originPatterns = append(g.originPatterns, u.Host)
		} else {
			g.originPatterns = append(g.originPatterns, o)
		}
	}
	return g
}

// Handle mounts the gateway on a gin route.
func (g *Gateway) Handle(c *gin.Context) {
	g.ServeHTTP(c.Writer, c.Request)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.anyOrigin,
	})
	if err != nil {
		g.log.Warn("realtime: accept failed", zap.String("origin", r.Header.Get("Origin")), zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	cl := newClient(g.sendQueue)
	l := g.log.With(zap.String("conn_id", cl.ID()))
	l.Debug("realtime: connected", zap.String("remote", r.RemoteAddr))
	g.metrics.RealtimeConnected()
	defer g.metrics.RealtimeDisconnected()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			// Closed before the user is read, so a concurrent authenticate
			// either is seen here or sees Done and undoes its own Add.
			cl.close()
			if uid := cl.user(); uid != "" {
				g.reg.Remove(uid, cl)
			}
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-cl.Done():
				return
			case env := <-cl.send:
				wctx, wcancel := context.WithTimeout(ctx, g.writeTimeout)
				err := wsjson.Write(wctx, conn, env)
				wcancel()
				if err != nil {
					l.Debug("realtime: write failed", zap.Error(err))
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				l.Debug("realtime: read failed", zap.Error(err))
			}
			break
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			g.sendError(cl, "Invalid JSON")
			continue
		}
		g.dispatch(ctx, cl, msg)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone
	l.Debug("realtime: disconnected", zap.String("user_id", cl.user()))
}

func (g *Gateway) dispatch(ctx context.Context, cl *client, msg inbound) {
	switch msg.Event {
	case EventAuthenticate:
		g.onAuthenticate(cl, msg.Data)
	case EventSendNotification:
		g.onSendNotification(ctx, cl, msg.Data)
	case EventNewAnalysisResult:
		g.onNewAnalysisResult(cl, msg.Data)
	default:
		g.sendError(cl, "Unknown event: "+msg.Event)
	}
}

func (g *Gateway) onAuthenticate(cl *client, data json.RawMessage) {
	var p struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &p); err != nil || strings.TrimSpace(p.Token) == "" {
		g.sendError(cl, "Authentication failed")
		return
	}
	claims, err := g.codec.VerifyAccessToken(strings.TrimSpace(p.Token))
	if err != nil {
		g.log.Debug("realtime: authenticate rejected", zap.String("conn_id", cl.ID()), zap.Error(err))
		g.sendError(cl, "Authentication failed")
		return
	}

	if prev := cl.bind(claims.Subject, claims.Role); prev != "" && prev != claims.Subject {
		g.reg.Remove(prev, cl)
	}
	g.reg.Add(claims.Subject, cl)
	select {
	case <-cl.Done():
		g.reg.Remove(claims.Subject, cl)
		return
	default:
	}
	cl.Send(Envelope{Event: EventAuthenticated, Data: gin.H{"userId": claims.Subject, "role": claims.Role}})
	g.log.Info("realtime: authenticated", zap.String("conn_id", cl.ID()), zap.String("user_id", claims.Subject))
}

func (g *Gateway) onSendNotification(ctx context.Context, cl *client, data json.RawMessage) {
	uid, role := cl.identity()
	if uid == "" {
		g.sendError(cl, "Not authenticated")
		return
	}
	var p struct {
		RecipientID string `json:"recipientId"`
		Title       string `json:"title"`
		Message     string `json:"message"`
		Type        string `json:"type"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendError(cl, "Invalid payload")
		return
	}
	_, err := g.notifications.Create(ctx, services.CreateNotificationInput{
		RecipientID: p.RecipientID,
		SenderID:    uid,
		SenderRole:  role,
		Type:        p.Type,
		Title:       p.Title,
		Message:     p.Message,
	})
	if err != nil {
		g.sendError(cl, services.MessageOf(err))
	}
}

func (g *Gateway) onNewAnalysisResult(cl *client, data json.RawMessage) {
	if cl.user() == "" {
		g.sendError(cl, "Not authenticated")
		return
	}
	var p struct {
		AnalysisID string `json:"analysisId"`
		PatientID  string `json:"patientId"`
		DoctorID   string `json:"doctorId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.AnalysisID == "" {
		g.sendError(cl, "analysisId is required")
		return
	}

	update := gin.H{"analysisId": p.AnalysisID, "status": "ready"}
	for _, target := range []string{p.PatientID, p.DoctorID} {
		if target == "" {
			continue
		}
		g.hub.Emit(target, EventAnalysisUpdate, update)
		if p.DoctorID == p.PatientID {
			break
		}
	}
}

func (g *Gateway) sendError(cl *client, msg string) {
	cl.Send(Envelope{Event: EventError, Data: gin.H{"message": msg}})
}
