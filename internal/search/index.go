package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive/task"
)

// DefaultLimit 未指定数量时返回的命中数
const DefaultLimit = 20

// document 索引中的任务文档。状态不入索引，由调用方读取最新值。
type document struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Type         string   `json:"type"`
	Priority     string   `json:"priority"`
	Capabilities []string `json:"capabilities"`
}

// Hit 一条命中
type Hit struct {
	TaskID uuid.UUID `json:"task_id"`
	Score  float64   `json:"score"`
}

// TaskIndex 基于 bleve 内存索引的任务全文检索
type TaskIndex struct {
	index  bleve.Index
	logger *zap.Logger
}

// NewTaskIndex 创建内存索引
func NewTaskIndex(logger *zap.Logger) (*TaskIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create task index: %w", err)
	}
	return &TaskIndex{
		index:  idx,
		logger: logger.With(zap.String("component", "task_index")),
	}, nil
}

// buildMapping 标题与描述分词检索，类型、优先级与能力名精确匹配
func buildMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	keyword := bleve.NewKeywordFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("description", text)
	doc.AddFieldMappingsAt("type", keyword)
	doc.AddFieldMappingsAt("priority", keyword)
	doc.AddFieldMappingsAt("capabilities", keyword)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

// Index 写入或覆盖任务文档
func (i *TaskIndex) Index(t *task.Task) error {
	caps := make([]string, len(t.RequiredCapabilities))
	for n, r := range t.RequiredCapabilities {
		caps[n] = r.Name
	}
	doc := document{
		Title:        t.Title,
		Description:  t.Description,
		Type:         t.Type,
		Priority:     t.Priority.String(),
		Capabilities: caps,
	}
	if err := i.index.Index(t.ID.String(), doc); err != nil {
		return fmt.Errorf("failed to index task %s: %w", t.ID, err)
	}
	return nil
}

// Delete 移除任务文档
func (i *TaskIndex) Delete(id uuid.UUID) error {
	return i.index.Delete(id.String())
}

// Count 已索引的文档数
func (i *TaskIndex) Count() uint64 {
	n, err := i.index.DocCount()
	if err != nil {
		i.logger.Warn("doc count failed", zap.Error(err))
		return 0
	}
	return n
}

// Search 按相关度返回命中。支持 bleve 查询串语法，如 "type:analysis parse"。
// 空查询返回空结果。
func (i *TaskIndex) Search(ctx context.Context, q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	req := bleve.NewSearchRequest(buildQuery(q))
	req.Size = limit
	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := uuid.Parse(h.ID)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{TaskID: id, Score: h.Score})
	}
	return hits, nil
}

// buildQuery 含字段限定时使用查询串，否则在标题、描述上做模糊匹配
func buildQuery(q string) query.Query {
	if strings.Contains(q, ":") {
		return bleve.NewQueryStringQuery(q)
	}
	title := bleve.NewMatchQuery(q)
	title.SetField("title")
	title.SetBoost(2)
	desc := bleve.NewMatchQuery(q)
	desc.SetField("description")
	return bleve.NewDisjunctionQuery(title, desc)
}

// Close 释放索引
func (i *TaskIndex) Close() error {
	return i.index.Close()
}
