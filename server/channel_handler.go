package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"WaveFM/cache"
	"WaveFM/core/channel"
	"WaveFM/core/station"
	"WaveFM/logger"
	"WaveFM/model"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// listenerUUIDHeader 监听者身份，客户端持有并随评分请求带上
const listenerUUIDHeader = "X-Listener-UUID"

// ChannelHandler 频道 HTTP 处理器
type ChannelHandler struct {
	manager      *channel.Manager
	hub          *station.Hub
	channelCache *cache.ChannelCache
}

// NewChannelHandler 创建频道处理器
func NewChannelHandler(manager *channel.Manager, hub *station.Hub, channelCache *cache.ChannelCache) *ChannelHandler {
	return &ChannelHandler{
		manager:      manager,
		hub:          hub,
		channelCache: channelCache,
	}
}

// channelFromRequest 解析路径中的频道ID并取出频道实例，
// 频道不存在时写好应答并返回 nil。
func (h *ChannelHandler) channelFromRequest(w http.ResponseWriter, r *http.Request) *channel.Channel {
	channelID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid channel id", http.StatusBadRequest)
		return nil
	}

	c, err := h.manager.Get(r.Context(), channelID)
	if err != nil {
		logger.Error("failed to load channel",
			logger.ErrorField(err),
			logger.Int64("channel", channelID))
		http.Error(w, "failed to load channel", http.StatusInternalServerError)
		return nil
	}
	if c == nil {
		http.Error(w, "channel not found", http.StatusNotFound)
		return nil
	}
	return c
}

// listenerUUID 取出监听者身份，没带的话现场发一个
func listenerUUID(r *http.Request) string {
	if id := r.Header.Get(listenerUUIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

// AddSongRequest 点歌请求
type AddSongRequest struct {
	TrackID int64 `json:"trackId"`
}

// AddSongHandler 点歌：已知曲目直接入队，未知曲目走异步获取。
// 获取中的请求也返回 202，客户端通过广播事件得知结果。
func (h *ChannelHandler) AddSongHandler(w http.ResponseWriter, r *http.Request) {
	c := h.channelFromRequest(w, r)
	if c == nil {
		return
	}

	var req AddSongRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TrackID <= 0 {
		http.Error(w, "invalid track id", http.StatusBadRequest)
		return
	}

	if err := c.AddSong(r.Context(), req.TrackID, nil); err != nil {
		logger.Error("failed to add song",
			logger.ErrorField(err),
			logger.Int64("channel", c.ID),
			logger.Int64("track", req.TrackID))
		http.Error(w, "failed to add song", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int64{"trackId": req.TrackID})
}

// RateTrackRequest 评分请求，rating 取 -1 / 0 / 1
type RateTrackRequest struct {
	TrackID int64 `json:"trackId"`
	Rating  int   `json:"rating"`
}

// RateTrackHandler 监听者给曲目评分，同一身份重复评分覆盖旧值
func (h *ChannelHandler) RateTrackHandler(w http.ResponseWriter, r *http.Request) {
	c := h.channelFromRequest(w, r)
	if c == nil {
		return
	}

	var req RateTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TrackID <= 0 {
		http.Error(w, "invalid track id", http.StatusBadRequest)
		return
	}

	if err := c.RateTrack(r.Context(), listenerUUID(r), req.TrackID, req.Rating); err != nil {
		logger.Error("failed to rate track",
			logger.ErrorField(err),
			logger.Int64("channel", c.ID),
			logger.Int64("track", req.TrackID))
		http.Error(w, "failed to rate track", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// NextHandler 播放端报告当前曲目播完，推进状态机
func (h *ChannelHandler) NextHandler(w http.ResponseWriter, r *http.Request) {
	c := h.channelFromRequest(w, r)
	if c == nil {
		return
	}

	trackID := c.Advance(r.Context())
	json.NewEncoder(w).Encode(map[string]int64{"trackId": trackID})
}

// PreloadHandler 播放端请求预载下一首
func (h *ChannelHandler) PreloadHandler(w http.ResponseWriter, r *http.Request) {
	c := h.channelFromRequest(w, r)
	if c == nil {
		return
	}

	trackID := c.PreloadNext(r.Context())
	json.NewEncoder(w).Encode(map[string]int64{"trackId": trackID})
}

// DetailsHandler 频道详情，优先读缓存
func (h *ChannelHandler) DetailsHandler(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid channel id", http.StatusBadRequest)
		return
	}

	if details, err := h.channelCache.GetDetails(r.Context(), channelID); err == nil && details != nil {
		// 快照可能是几分钟前的，监听人数用心跳集合的活跃数刷新
		if active, err := h.channelCache.GetActiveListenerCount(r.Context(), channelID); err == nil {
			details.Listeners = int(active)
		}
		json.NewEncoder(w).Encode(details)
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

	details := c.GetDetails()
	if err := h.channelCache.SetDetails(r.Context(), details); err != nil {
		logger.Debug("failed to cache channel details",
			logger.ErrorField(err),
			logger.Int64("channel", channelID))
	}
	json.NewEncoder(w).Encode(details)
}

// TracksHandler 频道全部曲目（带评分聚合）
func (h *ChannelHandler) TracksHandler(w http.ResponseWriter, r *http.Request) {
	c := h.channelFromRequest(w, r)
	if c == nil {
		return
	}

	tracks, err := c.GetTracks(r.Context())
	if err != nil {
		logger.Error("failed to list channel tracks",
			logger.ErrorField(err),
			logger.Int64("channel", c.ID))
		http.Error(w, "failed to list tracks", http.StatusInternalServerError)
		return
	}
	if tracks == nil {
		tracks = []*model.Track{}
	}
	json.NewEncoder(w).Encode(tracks)
}
