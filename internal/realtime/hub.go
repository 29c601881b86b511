package realtime

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/harentsoaR/medrec-api/internal/metrics"
	"github.com/harentsoaR/medrec-api/internal/services"
)

// Client events.
const (
	EventAuthenticate      = "authenticate"
	EventSendNotification  = "sendNotification"
	EventNewAnalysisResult = "newAnalysisResult"
)

// Server events.
const (
	EventAuthenticated   = "authenticated"
	EventNewNotification = services.NotificationEvent
	EventAnalysisUpdate  = "analysisUpdate"
	EventError           = "error"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub fans events out to the connections of a user. It never blocks on a
// slow connection.
type Hub struct {
	reg     Registry
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewHub(reg Registry, log *zap.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{reg: reg, log: log, metrics: m}
}

// Emit sends event to every connection of userID and reports whether any
// of them accepted it.
func (h *Hub) Emit(userID, event string, data any) bool {
	delivered := false
	for _, c := range h.reg.Lookup(userID) {
		if c.Send(Envelope{Event: event, Data: data}) {
			delivered = true
			continue
		}
		h.metrics.RealtimeDropped()
		h.log.Warn("realtime: dropped event", zap.String("user_id", userID), zap.String("conn_id", c.ID()), zap.String("event", event))
	}
	return delivered
}
