package pipeline

import (
	pipelinesvc "github.com/TAMAKQR/KONTENTZAVOD/internal/service/pipeline"
)

// Handler 生成流水线处理器
// 所有任务相关的Handler方法都通过这个结构体访问Service
type Handler struct {
	svc pipelinesvc.Service
}

// NewHandler 创建流水线处理器
func NewHandler(svc pipelinesvc.Service) *Handler {
	return &Handler{svc: svc}
}
