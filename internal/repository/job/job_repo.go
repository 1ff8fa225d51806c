package job

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/model/pipeline"
)

// JobRepository 任务仓库接口
type JobRepository interface {
	Create(ctx context.Context, job *pipeline.Job) error
	FindByID(ctx context.Context, id string) (*pipeline.Job, error)
	FindByUserID(ctx context.Context, userID string, limit int64) ([]*pipeline.Job, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
	UpdateStatus(ctx context.Context, id string, status pipeline.Status) error
	Delete(ctx context.Context, id string) error
}

// JobRepo 任务仓库实现
type JobRepo struct {
	coll *mongo.Collection
}

// NewJobRepo 创建任务仓库
func NewJobRepo(db *mongo.Database) *JobRepo {
	var j pipeline.Job
	return &JobRepo{coll: db.Collection(j.Collection())}
}

// Create 创建任务
func (r *JobRepo) Create(ctx context.Context, job *pipeline.Job) error {
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = pipeline.StatusPending
	}
	_, err := r.coll.InsertOne(ctx, job)
	return err
}

// FindByID 根据ID查询任务
func (r *JobRepo) FindByID(ctx context.Context, id string) (*pipeline.Job, error) {
	var job pipeline.Job
	if err := r.coll.FindOne(ctx, bson.M{"id": id, "deleted_at": nil}).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// FindByUserID 查询用户任务（按创建时间倒序）
func (r *JobRepo) FindByUserID(ctx context.Context, userID string, limit int64) ([]*pipeline.Job, error) {
	filter := bson.M{"user_id": userID, "deleted_at": nil}
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var jobs []*pipeline.Job
	if err := cur.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Update 更新任务
func (r *JobRepo) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	_, err := r.coll.UpdateOne(
		ctx,
		bson.M{"id": id},
		bson.M{"$set": updates},
	)
	return err
}

// UpdateStatus 更新任务状态
func (r *JobRepo) UpdateStatus(ctx context.Context, id string, status pipeline.Status) error {
	return r.Update(ctx, id, map[string]interface{}{"status": status})
}

// Delete 软删除任务
func (r *JobRepo) Delete(ctx context.Context, id string) error {
	_, err := r.coll.UpdateOne(
		ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{
			"deleted_at": time.Now(),
			"updated_at": time.Now(),
		}},
	)
	return err
}
