package notify

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"triarb/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Каналы pub/sub по умолчанию
const (
	DefaultEventChannel   = "triarb-run-event"
	DefaultSummaryChannel = "triarb-run-summary"
)

// RunSummary - итог запуска для внешних потребителей
type RunSummary struct {
	RunID        string           `json:"run_id"`
	Pairs        []string         `json:"pairs"`
	Status       models.RunStatus `json:"status"`
	Amount       float64          `json:"amount"`
	FinalAmount  float64          `json:"final_amount"`
	Profit       float64          `json:"profit"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Duration     float64          `json:"duration_seconds"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// RedisPublisher публикует события и итоги запусков в Redis
type RedisPublisher struct {
	client         *redis.Client
	eventChannel   string
	summaryChannel string
}

// NewRedisPublisher создает публикатор; пустые имена каналов заменяются значениями по умолчанию
func NewRedisPublisher(client *redis.Client, eventChannel, summaryChannel string) *RedisPublisher {
	if eventChannel == "" {
		eventChannel = DefaultEventChannel
	}
	if summaryChannel == "" {
		summaryChannel = DefaultSummaryChannel
	}
	return &RedisPublisher{
		client:         client,
		eventChannel:   eventChannel,
		summaryChannel: summaryChannel,
	}
}

// PublishRunEvent публикует переход состояния запуска
func (p *RedisPublisher) PublishRunEvent(ctx context.Context, event *models.RunEvent) error {
	return p.publish(ctx, p.eventChannel, event)
}

// PublishRunSummary публикует итог завершённого запуска.
// Прибыль считается только для COMPLETED, у прерванных запусков она 0.
func (p *RedisPublisher) PublishRunSummary(ctx context.Context, run *models.RunRecord) error {
	summary := RunSummary{
		RunID:        run.ID,
		Pairs:        run.Pairs,
		Status:       run.Status,
		Amount:       run.Amount,
		FinalAmount:  run.FinalAmount,
		ErrorMessage: run.ErrorMessage,
		Duration:     run.Duration().Seconds(),
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
	}
	if run.Status == models.RunStatusCompleted {
		summary.Profit = run.FinalAmount - run.Amount
	}
	return p.publish(ctx, p.summaryChannel, summary)
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", channel, err)
	}
	if err := p.client.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}
