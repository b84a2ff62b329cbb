package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/draw-guess/internal/game"
	"github.com/wfunc/draw-guess/internal/middleware"
)

// RoomHandler 房间与词库的只读接口
type RoomHandler struct {
	svc *game.Service
}

// NewRoomHandler 创建房间处理器
func NewRoomHandler(svc *game.Service) *RoomHandler {
	return &RoomHandler{svc: svc}
}

// WordsResponse 词库
type WordsResponse struct {
	Words []string `json:"words"`
	Count int      `json:"count"`
}

// SessionResponse 会话持有者看到的房间
type SessionResponse struct {
	Session *game.Session  `json:"session"`
	Room    game.RoomState `json:"room"`
}

// Words 返回全部词条
// @Summary 词库
// @Tags Game
// @Produce json
// @Success 200 {object} WordsResponse
// @Router /api/v1/words [get]
func (h *RoomHandler) Words(c *gin.Context) {
	list := h.svc.Words().Words()
	c.JSON(http.StatusOK, WordsResponse{Words: list, Count: len(list)})
}

// Room 返回房间公开快照，不含目标词
// @Summary 房间快照
// @Tags Game
// @Produce json
// @Param code path string true "房间号"
// @Success 200 {object} game.RoomState
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rooms/{code} [get]
func (h *RoomHandler) Room(c *gin.Context) {
	st, err := h.svc.RoomSnapshot(c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Session 令牌持有者视角的房间
// @Summary 当前会话
// @Tags Game
// @Security Bearer
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/session [get]
func (h *RoomHandler) Session(c *gin.Context) {
	sess, st, err := h.svc.SessionView(c.Request.Context(), middleware.GetToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Session: sess, Room: st})
}
