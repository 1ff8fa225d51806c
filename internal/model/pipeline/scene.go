package pipeline

// Scene 拆解出的单个场景
// id 从 1 开始连续编号，duration 为该场景视频时长（秒）
type Scene struct {
	ID         int    `bson:"id" json:"id"`
	Prompt     string `bson:"prompt" json:"prompt"`
	Duration   int    `bson:"duration" json:"duration"`
	Atmosphere string `bson:"atmosphere" json:"atmosphere"`
}
