package es

import (
	"context"
	"errors"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/operator"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/sortorder"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/versiontype"
	"github.com/goccy/go-json"
)

const MaxSearchSize = 100

type MessageRepo interface {
	IndexMessage(ctx context.Context, doc *MessageES, version int64) error
	Search(ctx context.Context, branchID uint64, convID uint64, keyword string, size int) ([]*MessageES, error)
}

type MessageRepoImpl struct {
	client *elasticsearch.TypedClient
}

func NewMessageRepo(client *elasticsearch.TypedClient) MessageRepo {
	return &MessageRepoImpl{client: client}
}

// IndexMessage 外部版本号写入，旧版本覆盖新版本时直接忽略
func (s *MessageRepoImpl) IndexMessage(ctx context.Context, doc *MessageES, version int64) error {
	docID := strconv.FormatUint(doc.ID, 10)

	_, err := s.client.Index(MessageIndex).
		Id(docID).
		Document(doc).
		Version(strconv.FormatInt(version, 10)).
		VersionType(versiontype.External).
		Do(ctx)
	if err != nil {
		var e *types.ElasticsearchError
		if errors.As(err, &e) && e.Status == ConflictCode {
			return nil
		}
		return err
	}
	return nil
}

// Search 分校内全文检索，convID 为 0 时不限会话
func (s *MessageRepoImpl) Search(ctx context.Context, branchID uint64, convID uint64, keyword string, size int) ([]*MessageES, error) {
	if size <= 0 || size > MaxSearchSize {
		size = MaxSearchSize
	}

	filter := []types.Query{
		{Term: map[string]types.TermQuery{"branch_id": {Value: branchID}}},
	}
	if convID > 0 {
		filter = append(filter, types.Query{
			Term: map[string]types.TermQuery{"conversation_id": {Value: convID}},
		})
	}

	query := &types.Query{
		Bool: &types.BoolQuery{
			Filter: filter,
			Must: []types.Query{{
				MultiMatch: &types.MultiMatchQuery{
					Query:    keyword,
					Fields:   []string{"content", "participant_name^2"},
					Operator: &operator.And,
				},
			}},
		},
	}

	resp, err := s.client.Search().
		Index(MessageIndex).
		Query(query).
		Size(size).
		Sort(
			types.SortOptions{SortOptions: map[string]types.FieldSort{"_score": {Order: &sortorder.Desc}}},
			types.SortOptions{SortOptions: map[string]types.FieldSort{"created_at": {Order: &sortorder.Desc}}},
		).
		Do(ctx)
	if err != nil {
		var e *types.ElasticsearchError
		if errors.As(err, &e) && e.Status == NotFoundCode {
			return []*MessageES{}, nil
		}
		return nil, err
	}

	results := make([]*MessageES, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		if hit.Source_ == nil {
			continue
		}
		var doc MessageES
		if err = json.Unmarshal(hit.Source_, &doc); err != nil {
			continue
		}
		results = append(results, &doc)
	}
	return results, nil
}
