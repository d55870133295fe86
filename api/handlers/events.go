package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive/bus"
	"github.com/BaSui01/agenthive/types"
)

// =============================================================================
// 📡 协调总线事件流（WebSocket）
// =============================================================================

// EventsHandler 把协调总线的消息以 JSON 信封推送给 WebSocket 客户端
type EventsHandler struct {
	bus            *bus.Bus
	originPatterns []string
	writeTimeout   time.Duration
	logger         *zap.Logger
}

// NewEventsHandler 创建事件流 Handler。originPatterns 为允许的跨域来源，空表示仅同源。
func NewEventsHandler(b *bus.Bus, originPatterns []string, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{
		bus:            b,
		originPatterns: originPatterns,
		writeTimeout:   5 * time.Second,
		logger:         logger.With(zap.String("handler", "events")),
	}
}

// HandleEvents 升级为 WebSocket 并持续推送事件，?kinds= 逗号分隔过滤消息类型
// @Router /api/v1/events [get]
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	kinds := parseKinds(r.URL.Query().Get("kinds"))

	// 先订阅再升级，总线已关闭时仍能返回普通 HTTP 错误
	name := "ws-" + uuid.NewString()
	sub, err := h.bus.Subscribe(name)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "event stream unavailable").
			WithCause(err).WithHTTPStatus(http.StatusServiceUnavailable), h.logger)
		return
	}
	defer sub.Unsubscribe()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 只写不读，CloseRead 处理对端的 close 帧并在断开时取消 ctx
	ctx := conn.CloseRead(r.Context())
	h.logger.Debug("event stream opened", zap.String("subscriber", name))

	reason, err := h.stream(ctx, conn, sub, kinds)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("event stream ended", zap.String("subscriber", name), zap.Error(err))
	}
	conn.Close(websocket.StatusNormalClosure, reason)
}

func (h *EventsHandler) stream(ctx context.Context, conn *websocket.Conn, sub *bus.Subscription, kinds map[bus.Kind]bool) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "client gone", ctx.Err()
		case d, ok := <-sub.C():
			if !ok {
				return "bus closed", nil
			}
			if len(kinds) > 0 && !kinds[d.Message.Kind()] {
				continue
			}
			env, err := d.Envelope()
			if err != nil {
				h.logger.Warn("failed to encode envelope", zap.Error(err))
				continue
			}
			data, err := json.Marshal(env)
			if err != nil {
				h.logger.Warn("failed to marshal envelope", zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return "write failed", err
			}
			if d.Message.Kind() == bus.KindShutdown {
				return "hive shutting down", nil
			}
		}
	}
}

func parseKinds(raw string) map[bus.Kind]bool {
	if raw == "" {
		return nil
	}
	kinds := make(map[bus.Kind]bool)
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[bus.Kind(k)] = true
		}
	}
	return kinds
}
