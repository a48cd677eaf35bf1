package server

import (
	"context"
	"net/http"
	"strconv"

	"WaveFM/core/station"
	"WaveFM/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketHandler 监听者接入：升级连接并加入频道广播组。
// 身份取 uuid 查询参数，没带的话现场分配，客户端应持久化复用。
func (h *ChannelHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid channel id", http.StatusBadRequest)
		return
	}

	c, err := h.manager.Get(r.Context(), channelID)
	if err != nil {
		http.Error(w, "failed to load channel", http.StatusInternalServerError)
		return
	}
	if c == nil {
		http.Error(w, "channel not found", http.StatusNotFound)
		return
	}

	listenerID := r.URL.Query().Get("uuid")
	if listenerID == "" {
		listenerID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed",
			logger.ErrorField(err),
			logger.Int64("channel", channelID))
		return
	}

	listener := &station.Listener{
		Hub:       h.hub,
		Conn:      conn,
		Send:      make(chan []byte, 64),
		ChannelID: channelID,
		UUID:      listenerID,
	}
	h.hub.Register(listener)

	// 连接的生命周期比这次请求长
	go listener.WritePump()
	go listener.ReadPump(context.Background())

	// 新监听者入场，让所有人看到最新人数
	go func() {
		if _, err := c.GetSongCount(context.Background()); err != nil {
			logger.Debug("failed to refresh channel details",
				logger.ErrorField(err),
				logger.Int64("channel", channelID))
		}
	}()
}
