package pipeline

// ImageResult 单个场景的图片生成结果
// 失败是数据不是异常：ErrorMessage 非空表示该场景失败，其它场景不受影响
type ImageResult struct {
	SceneID      int    `bson:"scene_id" json:"scene_id"`
	Prompt       string `bson:"prompt" json:"prompt"`
	URL          string `bson:"url" json:"url"`
	LocalPath    string `bson:"local_path,omitempty" json:"local_path,omitempty"`
	ErrorMessage string `bson:"error_message,omitempty" json:"error_message,omitempty"`
}

// OK 该场景是否生成成功
func (r ImageResult) OK() bool {
	return r.ErrorMessage == "" && r.URL != ""
}

// VideoResult 单个场景的视频生成结果
type VideoResult struct {
	SceneID      int    `bson:"scene_id" json:"scene_id"`
	URL          string `bson:"url" json:"url"`
	LocalPath    string `bson:"local_path,omitempty" json:"local_path,omitempty"`
	Duration     int    `bson:"duration" json:"duration"`
	ErrorMessage string `bson:"error_message,omitempty" json:"error_message,omitempty"`
}

// OK 该场景是否生成成功
func (r VideoResult) OK() bool {
	return r.ErrorMessage == "" && r.URL != ""
}

// ImageRunReport 一轮图片编排的汇总
type ImageRunReport struct {
	Results    []ImageResult `bson:"results" json:"results"`
	Total      int           `bson:"total" json:"total"`
	Successful int           `bson:"successful" json:"successful"`
}

// Strategy 图片编排策略
type Strategy string

const (
	// StrategyParallel 所有场景并发生成，共用同一个种子参考图
	StrategyParallel Strategy = "parallel"
	// StrategySequential 严格顺序生成，最近一次成功的图片作为下一场景的参考图
	StrategySequential Strategy = "sequential"
)

// PartialFailurePolicy 部分场景失败时的任务级行为
type PartialFailurePolicy string

const (
	// PolicyAbort 任一场景失败即任务失败，错误信息枚举所有失败场景
	PolicyAbort PartialFailurePolicy = "abort"
	// PolicyProceed 保留成功子集继续后续阶段
	PolicyProceed PartialFailurePolicy = "proceed"
)
