package vectorindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantBackend talks to Qdrant over gRPC
type QdrantBackend struct {
	client *qdrant.Client
}

type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// NewQdrantBackend connects to a Qdrant instance
func NewQdrantBackend(cfg QdrantConfig) (*QdrantBackend, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantBackend{client: client}, nil
}

func (q *QdrantBackend) Close() error {
	return q.client.Close()
}

// HealthCheck is used by the readiness endpoint.
func (q *QdrantBackend) HealthCheck(ctx context.Context) error {
	_, err := q.client.HealthCheck(ctx)
	return err
}

func (q *QdrantBackend) ListCollections(ctx context.Context) ([]string, error) {
	return q.client.ListCollections(ctx)
}

func (q *QdrantBackend) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (q *QdrantBackend) CollectionVectorSize(ctx context.Context, name string) (uint64, error) {
	info, err := q.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, err
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, fmt.Errorf("collection %s uses named vectors", name)
	}
	return params.GetSize(), nil
}

func (q *QdrantBackend) Upsert(ctx context.Context, collection string, point Point) error {
	payload, err := qdrant.TryValueMap(point.Payload)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDNum(point.ID),
				Vectors: qdrant.NewVectors(point.Vector...),
				Payload: payload,
			},
		},
	})
	return mapNotFound(err)
}

// mapNotFound turns Qdrant's NotFound status into ErrCollectionNotFound.
func mapNotFound(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, status.Convert(err).Message())
	}
	return err
}

func (q *QdrantBackend) Delete(ctx context.Context, collection string, ids ...uint64) error {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDNum(id))
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	return err
}

func (q *QdrantBackend) Search(ctx context.Context, collection string, vector []float32, limit uint64) ([]ScoredPoint, error) {
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	points := make([]ScoredPoint, 0, len(results))
	for _, r := range results {
		payload := make(map[string]interface{}, len(r.GetPayload()))
		for k, v := range r.GetPayload() {
			payload[k] = fromValue(v)
		}
		points = append(points, ScoredPoint{
			ID:      r.GetId().GetNum(),
			Score:   r.GetScore(),
			Payload: payload,
		})
	}
	return points, nil
}

func fromValue(v *qdrant.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}
