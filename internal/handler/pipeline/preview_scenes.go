package pipeline

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httpresp "github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/http"
)

// PreviewScenesRequest 场景预览请求
type PreviewScenesRequest struct {
	Concept          string `json:"concept" binding:"required"` // 创意描述（必填）
	SceneCount       int    `json:"scene_count"`                // 场景数（1-20）
	DurationPerScene int    `json:"duration_per_scene"`         // 单场景时长（秒）
}

// PreviewScenes 场景拆解预览
// @Summary      场景拆解预览
// @Description  只做场景拆解不生成媒体，用于提交前预览分镜
// @Tags         场景
// @Accept       json
// @Produce      json
// @Param        request  body      PreviewScenesRequest  true  "预览请求"
// @Success      200     {object}  httpresp.SuccessResponse
// @Failure      400     {object}  httpresp.ErrorResponse
// @Router       /api/v1/scenes/preview [post]
func (h *Handler) PreviewScenes(c *gin.Context) {
	var req PreviewScenesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	dec, err := h.svc.PreviewScenes(c.Request.Context(), req.Concept, req.SceneCount, req.DurationPerScene)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(50002, "Failed to decompose concept", err.Error()))
		return
	}

	c.JSON(http.StatusOK, httpresp.NewSuccessResponse("ok", gin.H{
		"enhanced_concept": dec.EnhancedConcept,
		"scenes":           dec.Scenes,
	}))
}
