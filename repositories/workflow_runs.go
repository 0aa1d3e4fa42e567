package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"town-desk/models"
)

type WorkflowRunRepository struct {
	col *mongo.Collection
}

func NewWorkflowRunRepository(db *mongo.Database) *WorkflowRunRepository {
	return &WorkflowRunRepository{col: db.Collection("workflow_runs")}
}

func (r *WorkflowRunRepository) Insert(ctx context.Context, run *models.WorkflowRun) (*models.WorkflowRun, error) {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	res, err := r.col.InsertOne(ctx, run)
	if err != nil {
		return nil, err
	}
	run.ID = res.InsertedID.(primitive.ObjectID)
	return run, nil
}

func (r *WorkflowRunRepository) Finish(ctx context.Context, runID string, status models.RunStatus, itemsProcessed int, errorMessage string, at time.Time) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"run_id": runID, "status": models.RunStarted},
		bson.M{"$set": bson.M{
			"status":          status,
			"items_processed": itemsProcessed,
			"error_message":   errorMessage,
			"completed_at":    at,
		}},
	)
	return err
}

func (r *WorkflowRunRepository) ListRecent(ctx context.Context, phase models.PipelinePhase, limit int64) ([]models.WorkflowRun, error) {
	filter := bson.M{}
	if phase != "" {
		filter["phase"] = phase
	}
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(limit)
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.WorkflowRun
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
