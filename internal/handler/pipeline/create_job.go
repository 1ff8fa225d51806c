package pipeline

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model "github.com/TAMAKQR/KONTENTZAVOD/internal/model/pipeline"
	httpresp "github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/http"
)

// CreateJobRequest 创建任务请求
type CreateJobRequest struct {
	Concept           string `json:"concept" binding:"required"` // 创意描述（必填）
	Mode              string `json:"mode"`                       // 模式：text_to_video/photo_ai/animation
	Model             string `json:"model"`                      // 视频模型 key：kling/veo
	AspectRatio       string `json:"aspect_ratio"`               // 画幅：16:9/9:16/1:1
	Strategy          string `json:"strategy"`                   // 图片编排策略：parallel/sequential
	SceneCount        int    `json:"scene_count"`                // 场景数（1-20）
	DurationPerScene  int    `json:"duration_per_scene"`         // 单场景时长（秒）
	ReferenceImageURL string `json:"reference_image_url"`        // 参考图/起始图
	UserID            string `json:"user_id"`                    // 用户标识
}

// CreateJob 创建生成任务
// @Summary      创建生成任务
// @Description  创建任务并异步执行流水线：场景拆解 → 图片 → 视频 → 合成
// @Tags         任务
// @Accept       json
// @Produce      json
// @Param        request  body      CreateJobRequest  true  "创建任务请求"
// @Success      202     {object}  httpresp.SuccessResponse
// @Failure      400     {object}  httpresp.ErrorResponse
// @Router       /api/v1/jobs [post]
func (h *Handler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	job := &model.Job{
		UserID:            req.UserID,
		Concept:           req.Concept,
		Mode:              model.Mode(req.Mode),
		ModelKey:          req.Model,
		AspectRatio:       req.AspectRatio,
		Strategy:          model.Strategy(req.Strategy),
		SceneCount:        req.SceneCount,
		DurationPerScene:  req.DurationPerScene,
		ReferenceImageURL: req.ReferenceImageURL,
	}

	if err := h.svc.Submit(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(40002, "Failed to submit job", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, httpresp.NewSuccessResponse("job accepted", gin.H{
		"job_id": job.ID,
		"status": job.Status,
	}))
}
