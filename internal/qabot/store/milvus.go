package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// MilvusOptions Milvus 连接与集合配置。
type MilvusOptions struct {
	// Address Milvus 服务地址。
	Address string
	// Username 用户名。
	Username string
	// Password 密码。
	Password string
	// Database 数据库名称。
	Database string
	// Collection 集合名称。
	Collection string
	// Timeout 连接超时时间。
	Timeout time.Duration
}

// MilvusStore 实现基于 Milvus 的向量存储。
// 主键为 chunk id（varchar，非自增），以支持按 ID 覆盖写入与删除。
type MilvusStore struct {
	client     *milvusclient.Client
	collection string
}

var metaFields = []struct {
	name   string
	maxLen int64
}{
	{"document_id", 64},
	{"question", 2048},
	{"answer", 65535},
	{"category", 255},
	{"link", 1024},
	{"content", 65535},
}

var outputFields = []string{"id", "document_id", "row_number", "question", "answer", "category", "link", "content"}

// NewMilvusStore 连接 Milvus 并创建存储实例。
func NewMilvusStore(ctx context.Context, opts *MilvusOptions) (*MilvusStore, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(connectCtx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &MilvusStore{
		client:     c,
		collection: opts.Collection,
	}, nil
}

// EnsureCollection 创建集合（若不存在）并建立 COSINE 向量索引。
func (s *MilvusStore) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	schema := entity.NewSchema().
		WithName(s.collection).
		WithDescription("Company Q&A knowledge base")

	schema.WithField(
		entity.NewField().
			WithName("id").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(128).
			WithIsPrimaryKey(true),
	)
	schema.WithField(
		entity.NewField().
			WithName("embedding").
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dimension)),
	)
	schema.WithField(
		entity.NewField().
			WithName("row_number").
			WithDataType(entity.FieldTypeInt64),
	)
	for _, f := range metaFields {
		schema.WithField(
			entity.NewField().
				WithName(f.name).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(f.maxLen),
		)
	}

	if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(s.collection, schema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(entity.COSINE, 128)
	createTask, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(s.collection, "embedding", idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}

	return nil
}

// Upsert 按 ID 批量覆盖写入记录。
func (s *MilvusStore) Upsert(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	n := len(records)
	ids := make([]string, n)
	embeddings := make([][]float32, n)
	rowNumbers := make([]int64, n)
	strCols := map[string][]string{
		"document_id": make([]string, n),
		"question":    make([]string, n),
		"answer":      make([]string, n),
		"category":    make([]string, n),
		"link":        make([]string, n),
		"content":     make([]string, n),
	}

	for i, r := range records {
		ids[i] = r.ID
		embeddings[i] = r.Embedding
		rowNumbers[i] = r.RowNumber
		strCols["document_id"][i] = r.DocumentID
		strCols["question"][i] = r.Question
		strCols["answer"][i] = r.Answer
		strCols["category"][i] = r.Category
		strCols["link"][i] = r.Link
		strCols["content"][i] = r.Content
	}

	columns := []column.Column{
		column.NewColumnVarChar("id", ids),
		column.NewColumnFloatVector("embedding", len(embeddings[0]), embeddings),
		column.NewColumnInt64("row_number", rowNumbers),
	}
	for _, f := range metaFields {
		columns = append(columns, column.NewColumnVarChar(f.name, strCols[f.name]))
	}

	if _, err := s.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(s.collection, columns...)); err != nil {
		return fmt.Errorf("failed to upsert into milvus: %w", err)
	}

	// Flush 保证写入立即可见。同步频率低，代价可接受。
	flushTask, err := s.client.Flush(ctx, milvusclient.NewFlushOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}

	return nil
}

// Delete 按 ID 批量删除记录。
func (s *MilvusStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.collection).WithStringIDs("id", ids)); err != nil {
		return fmt.Errorf("failed to delete from milvus: %w", err)
	}
	return nil
}

// Search 执行向量相似度搜索。
func (s *MilvusStore) Search(ctx context.Context, embedding []float32, topK int) ([]*Match, error) {
	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection))
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for collection loading: %w", err)
	}

	vectors := []entity.Vector{entity.FloatVector(embedding)}
	results, err := s.client.Search(ctx, milvusclient.NewSearchOption(
		s.collection,
		topK,
		vectors,
	).WithANNSField("embedding").
		WithSearchParam("nprobe", "16").
		WithOutputFields(outputFields...))
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	if len(results) == 0 {
		return []*Match{}, nil
	}

	matches := make([]*Match, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		m := &Match{Score: results[0].Scores[i]}

		for _, field := range results[0].Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				val := col.Data()[i]
				switch col.Name() {
				case "id":
					m.ID = val
				case "document_id":
					m.DocumentID = val
				case "question":
					m.Question = val
				case "answer":
					m.Answer = val
				case "category":
					m.Category = val
				case "link":
					m.Link = val
				case "content":
					m.Content = val
				}
			case *column.ColumnInt64:
				if col.Name() == "row_number" {
					m.RowNumber = col.Data()[i]
				}
			}
		}

		matches = append(matches, m)
	}

	return matches, nil
}

// Stats 获取集合中的记录数。
func (s *MilvusStore) Stats(ctx context.Context) (int64, error) {
	stats, err := s.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(s.collection))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}

	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// 确保 MilvusStore 实现了 VectorStore 接口。
var _ VectorStore = (*MilvusStore)(nil)
