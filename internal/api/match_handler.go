package api

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/draw-guess/internal/errors"
	"github.com/wfunc/draw-guess/internal/models"
	"github.com/wfunc/draw-guess/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MatchHandler 历史对局查询，repo 为 nil 表示归档关闭
type MatchHandler struct {
	repo   repository.MatchRepository
	logger *zap.Logger
}

// NewMatchHandler 创建历史对局处理器
func NewMatchHandler(repo repository.MatchRepository, logger *zap.Logger) *MatchHandler {
	return &MatchHandler{repo: repo, logger: logger}
}

// requireArchive 归档关闭时返回 503
func (h *MatchHandler) requireArchive(c *gin.Context) {
	if h.repo == nil {
		respondError(c, errors.New(errors.ErrArchiveDisabled))
		c.Abort()
		return
	}
	c.Next()
}

// List 分页查询历史对局
// @Summary 历史对局
// @Tags Matches
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param room query string false "按房间号过滤"
// @Param username query string false "按玩家过滤"
// @Success 200 {object} PageResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/matches [get]
func (h *MatchHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	p := repository.NewPagination(page, size)
	ctx := c.Request.Context()

	var (
		matches []*models.Match
		err     error
	)
	switch {
	case c.Query("room") != "":
		matches, err = h.repo.FindByRoomCode(ctx, strings.ToUpper(c.Query("room")), p)
	case c.Query("username") != "":
		matches, err = h.repo.FindByUsername(ctx, c.Query("username"), p)
	default:
		matches, err = h.repo.List(ctx, p)
	}
	if err != nil {
		h.logger.Error("查询历史对局失败", zap.Error(err))
		respondError(c, errors.Wrap(err, errors.ErrDatabaseQuery))
		return
	}
	if matches == nil {
		matches = []*models.Match{}
	}

	c.JSON(http.StatusOK, PageResponse{
		Items:    matches,
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    p.Total,
	})
}

// Get 查询单局详情
// @Summary 对局详情
// @Tags Matches
// @Produce json
// @Param id path int true "对局ID"
// @Success 200 {object} models.Match
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/matches/{id} [get]
func (h *MatchHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, errors.New(errors.ErrInvalidParam, "对局ID无效"))
		return
	}

	match, err := h.repo.FindByID(c.Request.Context(), uint(id))
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, errors.New(errors.ErrMatchNotFound))
		return
	}
	if err != nil {
		h.logger.Error("查询对局失败", zap.Uint64("id", id), zap.Error(err))
		respondError(c, errors.Wrap(err, errors.ErrDatabaseQuery))
		return
	}
	c.JSON(http.StatusOK, match)
}
