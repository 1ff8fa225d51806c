package pipeline

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mode 任务模式
type Mode string

const (
	// ModeTextToVideo 纯文本到视频（无参考图）
	ModeTextToVideo Mode = "text_to_video"
	// ModePhotoAI 用户照片驱动：先逐场景生成图片，再以图生视频
	ModePhotoAI Mode = "photo_ai"
	// ModeAnimation 单图动画化：一个场景，必须有起始图片
	ModeAnimation Mode = "animation"
)

// Status 任务状态
type Status string

const (
	StatusPending          Status = "pending"
	StatusDecomposing      Status = "decomposing"
	StatusGeneratingImages Status = "generating_images"
	StatusGeneratingVideos Status = "generating_videos"
	StatusStitching        Status = "stitching"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

// Job 一次完整的生成任务
type Job struct {
	ID                string        `bson:"id" json:"id"`
	UserID            string        `bson:"user_id" json:"user_id"`
	Concept           string        `bson:"concept" json:"concept"`
	EnhancedConcept   string        `bson:"enhanced_concept,omitempty" json:"enhanced_concept,omitempty"`
	Mode              Mode          `bson:"mode" json:"mode"`
	ModelKey          string        `bson:"model_key" json:"model_key"`
	AspectRatio       string        `bson:"aspect_ratio" json:"aspect_ratio"`
	Strategy          Strategy      `bson:"strategy,omitempty" json:"strategy,omitempty"`
	SceneCount        int           `bson:"scene_count" json:"scene_count"`
	DurationPerScene  int           `bson:"duration_per_scene" json:"duration_per_scene"`
	ReferenceImageURL string        `bson:"reference_image_url,omitempty" json:"reference_image_url,omitempty"`
	Status            Status        `bson:"status" json:"status"`
	Scenes            []Scene       `bson:"scenes,omitempty" json:"scenes,omitempty"`
	ImageResults      []ImageResult `bson:"image_results,omitempty" json:"image_results,omitempty"`
	VideoResults      []VideoResult `bson:"video_results,omitempty" json:"video_results,omitempty"`
	ArtifactURL       string        `bson:"artifact_url,omitempty" json:"artifact_url,omitempty"`
	ErrorMessage      string        `bson:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt         time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `bson:"updated_at" json:"updated_at"`
	DeletedAt         *time.Time    `bson:"deleted_at,omitempty" json:"-"`
}

// Collection 返回集合名称
func (Job) Collection() string {
	return "jobs"
}

// EnsureIndexes 创建任务集合索引
func (j *Job) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(j.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_id").SetUnique(true),
		},
		{
			Keys:    bson.D{bson.E{Key: "user_id", Value: 1}, bson.E{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_user_created"),
		},
		{
			Keys:    bson.D{bson.E{Key: "status", Value: 1}, bson.E{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_status_created"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
