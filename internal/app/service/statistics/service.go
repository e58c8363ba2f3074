package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	models "github.com/bossbuddy/billing/internal/models"
	types "github.com/bossbuddy/billing/pkg/types"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Statistic types served to the admin dashboard.
type StatisticType string

const (
	StatisticTypeDailyRewriteCount          StatisticType = "daily_rewrite_count"
	StatisticTypeDailyNewSubscriptionCount  StatisticType = "daily_new_subscription_count"
	StatisticTypeActiveSubscriptionCount    StatisticType = "active_subscription_count"
	StatisticTypeDailyRevenue               StatisticType = "daily_revenue"
	StatisticTypeDailyWebhookFailureCount   StatisticType = "daily_webhook_failure_count"
)

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type StatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*StatisticDataItem  `json:"data_items"`
}

// filters composes a WHERE clause from the request filters.
func (r *StatisticRequest) filters() clause.Expression {
	if r == nil || len(r.Filters) == 0 {
		return clause.Expr{SQL: "1=1"}
	}
	exprs := make([]clause.Expression, 0, len(r.Filters))
	for _, f := range r.Filters {
		exprs = append(exprs, f)
	}
	return clause.And(exprs...)
}

type StatisticResponseDataItem struct {
	Date  string `json:"date"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) getDailyRewriteCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.UsageLog{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, tone AS label, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.filters()}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("tone").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewSubscriptionCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(distinct user_id) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.filters()}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getActiveSubscriptionCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.filters()}}).
		Where("status IN ?", []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusCancelled}).
		Where("current_period_end >= ?", time.Now())
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyRevenue(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, currency AS label, sum(amount_cents) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.filters()}}).
		Where("status != ?", types.SubscriptionStatusPending).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("currency").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyWebhookFailureCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.WebhookEvent{}).TableName()).
		Select("TO_CHAR(received_at, 'YYYY-MM-DD') as date, provider AS label, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.filters()}}).
		Where("processed = ?", false).
		Group("TO_CHAR(received_at, 'YYYY-MM-DD')").
		Group("provider").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, request *StatisticRequest, dataItem *StatisticDataItem) ([]StatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyRewriteCount:
		return s.getDailyRewriteCount(ctx, request)
	case StatisticTypeDailyNewSubscriptionCount:
		return s.getDailyNewSubscriptionCount(ctx, request)
	case StatisticTypeActiveSubscriptionCount:
		return s.getActiveSubscriptionCount(ctx, request)
	case StatisticTypeDailyRevenue:
		return s.getDailyRevenue(ctx, request)
	case StatisticTypeDailyWebhookFailureCount:
		return s.getDailyWebhookFailureCount(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetStatistics fans the requested data items out concurrently and collects
// the per-type series.
func (s *Service) GetStatistics(ctx context.Context, request *StatisticRequest) (*StatisticResponse, error) {
	if request == nil || len(request.DataItems) == 0 {
		return nil, fmt.Errorf("no data items requested")
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *StatisticDataItem) {
			defer wg.Done()
			res, err := s.getStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[StatisticType][]StatisticResponseDataItem)
	for i := 0; i < len(request.DataItems); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				return nil, err
			}
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &StatisticResponse{DataItems: results}, nil
}
