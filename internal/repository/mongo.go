package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
)

const evaluationsCollection = "health_evaluations"

// evaluationDocument is the BSON shape of an evaluation.
type evaluationDocument struct {
	ID             string             `bson:"_id"`
	AccountID      string             `bson:"accountId"`
	EvaluatedBy    string             `bson:"evaluatedBy"`
	EvaluationDate time.Time          `bson:"evaluationDate"`
	Responses      map[string]float64 `bson:"responses"`
	TotalScore     int                `bson:"totalScore"`
	PilarScores    map[string]int     `bson:"pilarScores"`
	Classification string             `bson:"classification"`
}

// MongoRepository implements domain.Repository on a MongoDB collection.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoRepository connects to cfg.MongoURI and ensures the list index.
func NewMongoRepository(ctx context.Context, cfg domain.RepositoryConfig) (*MongoRepository, error) {
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("%w: mongo driver requires a URI", ErrInvalidInput)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	dbName := cfg.MongoDatabase
	if dbName == "" {
		dbName = "healthscore"
	}
	coll := client.Database(dbName).Collection(evaluationsCollection)

	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "accountId", Value: 1}, {Key: "evaluationDate", Value: -1}, {Key: "_id", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &MongoRepository{client: client, collection: coll}, nil
}

// CreateEvaluation appends a new evaluation record.
func (r *MongoRepository) CreateEvaluation(ctx context.Context, eval *domain.Evaluation) (*domain.Evaluation, error) {
	rec, err := newRecord(eval)
	if err != nil {
		return nil, err
	}

	doc := evaluationDocument{
		ID:             rec.ID,
		AccountID:      rec.AccountID,
		EvaluatedBy:    rec.EvaluatedBy,
		EvaluationDate: rec.EvaluationDate,
		Responses:      rec.Responses,
		TotalScore:     rec.TotalScore,
		PilarScores:    rec.PilarScores,
		Classification: string(rec.Classification),
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return rec, nil
}

// ListEvaluations returns up to limit evaluations for an account, newest first.
func (r *MongoRepository) ListEvaluations(ctx context.Context, accountID string, limit int) ([]*domain.Evaluation, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "evaluationDate", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))

	cursor, err := r.collection.Find(ctx, bson.M{"accountId": accountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []evaluationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode evaluations: %w", err)
	}

	evals := make([]*domain.Evaluation, 0, len(docs))
	for _, d := range docs {
		evals = append(evals, &domain.Evaluation{
			ID:             d.ID,
			AccountID:      d.AccountID,
			EvaluatedBy:    d.EvaluatedBy,
			EvaluationDate: d.EvaluationDate.UTC(),
			Responses:      d.Responses,
			TotalScore:     d.TotalScore,
			PilarScores:    d.PilarScores,
			Classification: domain.Classification(d.Classification),
		})
	}
	return evals, nil
}

// Ping checks server connectivity.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}
