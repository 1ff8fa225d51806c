package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/model/pipeline"
)

// EnsureIndexes 创建所有模型的索引
// 应用启动时统一调用；实现了 Model 接口的模型自动创建自己的索引
func EnsureIndexes(db *mongo.Database) error {
	ctx := context.Background()

	models := []Model{
		&pipeline.Job{},
	}

	return EnsureAllIndexes(ctx, db, models...)
}
