package vectordb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/config"
	"github.com/bambooai/panda-gateway/schema"
)

const (
	fieldID       = "id"
	fieldContent  = "content"
	fieldMetadata = "metadata"
	fieldVector   = "vector"

	maxContentLength = 65535
)

// MilvusStore keeps one collection with a partition per user.
type MilvusStore struct {
	cli        client.Client
	collection string
	dim        int
}

func NewMilvusStore(ctx context.Context, cfg config.VectorDBConfig, dim int) (*MilvusStore, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	cli, err := client.NewClient(ctx, client.Config{
		Address:  addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus at %s: %w", addr, err)
	}
	s := &MilvusStore{cli: cli, collection: cfg.Collection, dim: dim}
	if err := s.ensureCollection(ctx); err != nil {
		cli.Close()
		return nil, err
	}
	return s, nil
}

func (s *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := s.cli.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("has collection: %w", err)
	}
	if !has {
		sch := &entity.Schema{
			CollectionName: s.collection,
			Fields: []*entity.Field{
				entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true),
				entity.NewField().WithName(fieldContent).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxContentLength),
				entity.NewField().WithName(fieldMetadata).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxContentLength),
				entity.NewField().WithName(fieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)),
			},
		}
		if err := s.cli.CreateCollection(ctx, sch, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 64)
		if err != nil {
			return fmt.Errorf("build index: %w", err)
		}
		if err := s.cli.CreateIndex(ctx, s.collection, fieldVector, idx, false); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		logger.Infof("vectordb: created collection %s (dim=%d)", s.collection, s.dim)
	}
	if err := s.cli.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusStore) ensurePartition(ctx context.Context, partition string) error {
	has, err := s.cli.HasPartition(ctx, s.collection, partition)
	if err != nil {
		return err
	}
	if !has {
		if err := s.cli.CreatePartition(ctx, s.collection, partition); err != nil {
			return err
		}
	}
	return nil
}

func (s *MilvusStore) AddDocs(ctx context.Context, partition string, docs []schema.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.ensurePartition(ctx, partition); err != nil {
		return fmt.Errorf("ensure partition %s: %w", partition, err)
	}
	ids := make([]string, 0, len(docs))
	contents := make([]string, 0, len(docs))
	metas := make([]string, 0, len(docs))
	vectors := make([][]float32, 0, len(docs))
	for _, d := range docs {
		if len(d.Vector) != s.dim {
			return fmt.Errorf("document %s: vector dim %d, want %d", d.ID, len(d.Vector), s.dim)
		}
		content := d.Content
		if len(content) > maxContentLength {
			content = content[:maxContentLength]
		}
		meta := "{}"
		if d.Metadata != nil {
			if bs, err := json.Marshal(d.Metadata); err == nil {
				meta = string(bs)
			}
		}
		ids = append(ids, d.ID)
		contents = append(contents, content)
		metas = append(metas, meta)
		vectors = append(vectors, d.Vector)
	}
	_, err := s.cli.Insert(ctx, s.collection, partition,
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldContent, contents),
		entity.NewColumnVarChar(fieldMetadata, metas),
		entity.NewColumnFloatVector(fieldVector, s.dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("insert into %s/%s: %w", s.collection, partition, err)
	}
	return nil
}

func (s *MilvusStore) SearchDocs(ctx context.Context, partition string, vector []float32, opts schema.SearchOptions) ([]schema.SearchResult, error) {
	has, err := s.cli.HasPartition(ctx, s.collection, partition)
	if err != nil {
		return nil, fmt.Errorf("has partition: %w", err)
	}
	if !has {
		// New user with no stored context yet.
		return nil, nil
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}
	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("search param: %w", err)
	}
	results, err := s.cli.Search(ctx, s.collection, []string{partition}, "",
		[]string{fieldID, fieldContent, fieldMetadata},
		[]entity.Vector{entity.FloatVector(vector)}, fieldVector, entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("search %s/%s: %w", s.collection, partition, err)
	}

	var out []schema.SearchResult
	for _, rs := range results {
		idCol, _ := rs.Fields.GetColumn(fieldID).(*entity.ColumnVarChar)
		contentCol, _ := rs.Fields.GetColumn(fieldContent).(*entity.ColumnVarChar)
		metaCol, _ := rs.Fields.GetColumn(fieldMetadata).(*entity.ColumnVarChar)
		for i := 0; i < rs.ResultCount; i++ {
			doc := schema.Document{}
			if idCol != nil {
				doc.ID, _ = idCol.ValueByIdx(i)
			}
			if contentCol != nil {
				doc.Content, _ = contentCol.ValueByIdx(i)
			}
			if metaCol != nil {
				if raw, err := metaCol.ValueByIdx(i); err == nil && raw != "" {
					_ = json.Unmarshal([]byte(raw), &doc.Metadata)
				}
			}
			score := float64(rs.Scores[i])
			if opts.Threshold > 0 && score < opts.Threshold {
				continue
			}
			out = append(out, schema.SearchResult{Document: doc, Score: score})
		}
	}
	return out, nil
}

func (s *MilvusStore) Close() error {
	return s.cli.Close()
}
