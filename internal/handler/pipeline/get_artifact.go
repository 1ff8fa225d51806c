package pipeline

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httpresp "github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/http"
)

// GetArtifact 获取成品下载地址
// @Summary      获取成品下载地址
// @Description  任务完成后返回成品视频的下载URL（存储支持时做预签名）
// @Tags         任务
// @Produce      json
// @Param        id   path      string  true  "任务ID"
// @Success      200  {object}  httpresp.SuccessResponse
// @Failure      404  {object}  httpresp.ErrorResponse
// @Router       /api/v1/jobs/{id}/artifact [get]
func (h *Handler) GetArtifact(c *gin.Context) {
	url, err := h.svc.ArtifactURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(40403, "Artifact not available", err.Error()))
		return
	}

	c.JSON(http.StatusOK, httpresp.NewSuccessResponse("ok", gin.H{"url": url}))
}
