package ltm

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// qdrantCollection is the production collectionClient, talking to a real
// Qdrant instance over gRPC. There is no in-pack reference copy of
// qdrant/go-client to mirror idiom from; this adapter follows the package's
// published client shape (qdrant.NewClient, *qdrant.PointsClient-style
// verbs) and keeps all call construction in one file so a version drift in
// the client is a one-file fix.
type qdrantCollection struct {
	client *qdrant.Client
}

// NewQdrantCollection builds the production collectionClient against an
// already-connected Qdrant client.
func NewQdrantCollection(client *qdrant.Client) collectionClient {
	return &qdrantCollection{client: client}
}

func (c *qdrantCollection) EnsureCollection(ctx context.Context) error {
	exists, err := c.client.CollectionExists(ctx, CollectionName)
	if err != nil {
		return fmt.Errorf("ltm: check collection: %w", err)
	}
	if exists {
		info, err := c.client.GetCollectionInfo(ctx, CollectionName)
		if err != nil {
			return fmt.Errorf("ltm: get collection info: %w", err)
		}
		if vectorSizeOf(info) == VectorSize {
			return nil
		}
		if err := c.client.DeleteCollection(ctx, CollectionName); err != nil {
			return fmt.Errorf("ltm: recreate collection (delete): %w", err)
		}
	}
	return c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (c *qdrantCollection) Upsert(ctx context.Context, f Fact) error {
	payload := map[string]*qdrant.Value{
		"user_email": qdrant.NewValueString(f.UserEmail),
		"fact_text":  qdrant.NewValueString(f.FactText),
		"importance": qdrant.NewValueInt(int64(f.Importance)),
		"created_at": qdrant.NewValueString(f.CreatedAt.Format(timeLayout)),
	}
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: CollectionName,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDNum(f.ID),
				Vectors: qdrant.NewVectors(f.Vector...),
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ltm: upsert: %w", err)
	}
	return nil
}

func (c *qdrantCollection) ScrollByUser(ctx context.Context, userEmail string, limit int) ([]Fact, error) {
	points, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: CollectionName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("user_email", userEmail),
			},
		},
		Limit:       qdrant.PtrOf(uint32(limit)),
		WithVectors: qdrant.NewWithVectors(true),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("ltm: scroll: %w", err)
	}
	facts := make([]Fact, 0, len(points))
	for _, p := range points {
		facts = append(facts, factFromPoint(p))
	}
	return facts, nil
}

func (c *qdrantCollection) Delete(ctx context.Context, id uint64) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points:         qdrant.NewPointsSelectorIDs([]*qdrant.PointId{qdrant.NewIDNum(id)}),
	})
	if err != nil {
		return fmt.Errorf("ltm: delete: %w", err)
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

func vectorSizeOf(info *qdrant.CollectionInfo) uint64 {
	if info == nil || info.Config == nil || info.Config.Params == nil {
		return 0
	}
	vc := info.Config.Params.VectorsConfig
	if vc == nil {
		return 0
	}
	if params := vc.GetParams(); params != nil {
		return params.GetSize()
	}
	return 0
}

func factFromPoint(p *qdrant.RetrievedPoint) Fact {
	f := Fact{ID: idNumOf(p.GetId())}
	payload := p.GetPayload()
	if v, ok := payload["user_email"]; ok {
		f.UserEmail = v.GetStringValue()
	}
	if v, ok := payload["fact_text"]; ok {
		f.FactText = v.GetStringValue()
	}
	if v, ok := payload["importance"]; ok {
		f.Importance = int(v.GetIntegerValue())
	}
	if vectors := p.GetVectors(); vectors != nil {
		if dense := vectors.GetVector(); dense != nil {
			f.Vector = dense.GetData()
		}
	}
	return f
}

func idNumOf(id *qdrant.PointId) uint64 {
	if id == nil {
		return 0
	}
	return id.GetNum()
}
