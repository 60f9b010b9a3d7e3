package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"shortlink-platform/internal/errs"
	"shortlink-platform/internal/service"
)

// uvCookieMaxAge 访客 cookie 有效期 30 天
const uvCookieMaxAge = 60 * 60 * 24 * 30

// ShortLinkHandler 短链接接入层
type ShortLinkHandler struct {
	svc          *service.LinkService
	notFoundPath string
}

func NewShortLinkHandler(svc *service.LinkService, notFoundPath string) *ShortLinkHandler {
	if notFoundPath == "" {
		notFoundPath = "/page/notfound"
	}
	return &ShortLinkHandler{svc: svc, notFoundPath: notFoundPath}
}

// HealthCheck 健康检查
func (h *ShortLinkHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

// CreateShortLink 创建短链接
func (h *ShortLinkHandler) CreateShortLink(c *gin.Context) {
	var req service.CreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据: " + err.Error()})
		return
	}

	resp, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// BatchCreateShortLink 批量创建短链接，单条失败不影响整批
func (h *ShortLinkHandler) BatchCreateShortLink(c *gin.Context) {
	var req service.BatchCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据: " + err.Error()})
		return
	}

	resp := h.svc.BatchCreate(c.Request.Context(), &req)
	c.JSON(http.StatusOK, resp)
}

// UpdateShortLink 修改短链接，分组变化时内部走迁移协议
func (h *ShortLinkHandler) UpdateShortLink(c *gin.Context) {
	var req service.UpdateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据: " + err.Error()})
		return
	}

	if err := h.svc.Update(c.Request.Context(), &req); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "修改成功"})
}

// PageShortLink 分组内分页查询
func (h *ShortLinkHandler) PageShortLink(c *gin.Context) {
	gid := c.Query("gid")
	if gid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 gid 参数"})
		return
	}
	current, _ := strconv.Atoi(c.DefaultQuery("current", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))

	links, total, err := h.svc.Page(c.Request.Context(), gid, current, size)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "records": links})
}

// GroupShortLinkCount 查询若干分组内的短链接数量
func (h *ShortLinkHandler) GroupShortLinkCount(c *gin.Context) {
	gidsParam := c.Query("gids")
	if gidsParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 gids 参数"})
		return
	}
	counts, err := h.svc.GroupCounts(c.Request.Context(), strings.Split(gidsParam, ","))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// RedirectToOrigin 短链接跳转
func (h *ShortLinkHandler) RedirectToOrigin(c *gin.Context) {
	suffix := c.Param("suffix")
	fullShortURL := requestHost(c) + "/" + suffix

	uvCookie, _ := c.Cookie("uv")
	visitor := &service.Visitor{
		IP:       c.ClientIP(),
		Os:       classifyOs(c.Request.UserAgent()),
		Browser:  classifyBrowser(c.Request.UserAgent()),
		Device:   classifyDevice(c.Request.UserAgent()),
		Network:  classifyNetwork(c),
		UvCookie: uvCookie,
		SetUvCookie: func(uv string) {
			c.SetCookie("uv", uv, uvCookieMaxAge, "/"+suffix, "", false, false)
		},
	}

	target, err := h.svc.Restore(c.Request.Context(), fullShortURL, visitor)
	if err != nil {
		if errors.Is(err, errs.ErrLinkNotFound) {
			// 未命中一律落到 notfound 页，不泄露内部状态
			c.Redirect(http.StatusFound, h.notFoundPath)
			return
		}
		h.writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

// requestHost 构造 full_short_url 用的主机名，80 端口省略
func requestHost(c *gin.Context) string {
	host := c.Request.Host
	return strings.TrimSuffix(host, ":80")
}

// writeError 服务层错误到 HTTP 状态码的映射
func (h *ShortLinkHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrWhitelistDenied):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrResourceBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrAllocationExhausted), errors.Is(err, errs.ErrGenerationConflict),
		errors.Is(err, errs.ErrDependencyUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}
