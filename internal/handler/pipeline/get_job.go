package pipeline

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httpresp "github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/http"
)

// GetJob 查询任务
// @Summary      查询任务
// @Description  按ID查询任务详情，包含场景、各阶段结果和成品地址
// @Tags         任务
// @Produce      json
// @Param        id   path      string  true  "任务ID"
// @Success      200  {object}  httpresp.SuccessResponse
// @Failure      404  {object}  httpresp.ErrorResponse
// @Router       /api/v1/jobs/{id} [get]
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(40401, "Job not found", err.Error()))
		return
	}

	c.JSON(http.StatusOK, httpresp.NewSuccessResponse("ok", job))
}

// ListJobs 查询用户任务列表
// @Summary      查询任务列表
// @Description  按用户查询最近的任务，按创建时间倒序
// @Tags         任务
// @Produce      json
// @Param        user_id  query     string  true  "用户标识"
// @Success      200      {object}  httpresp.SuccessResponse
// @Failure      400      {object}  httpresp.ErrorResponse
// @Router       /api/v1/jobs [get]
func (h *Handler) ListJobs(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(40003, "user_id is required"))
		return
	}

	jobs, err := h.svc.List(c.Request.Context(), userID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(50001, "Failed to list jobs", err.Error()))
		return
	}

	c.JSON(http.StatusOK, httpresp.NewSuccessResponse("ok", jobs))
}

// GetProgress 查询任务进度
// @Summary      查询任务进度
// @Description  读取任务进度快照（来自缓存，实时性优于落库状态）
// @Tags         任务
// @Produce      json
// @Param        id   path      string  true  "任务ID"
// @Success      200  {object}  httpresp.SuccessResponse
// @Failure      404  {object}  httpresp.ErrorResponse
// @Router       /api/v1/jobs/{id}/progress [get]
func (h *Handler) GetProgress(c *gin.Context) {
	progress, err := h.svc.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(40402, "Progress not found", err.Error()))
		return
	}

	c.JSON(http.StatusOK, httpresp.NewSuccessResponse("ok", progress))
}
