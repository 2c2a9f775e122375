package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"immersia-backend/internal/repository"
	"immersia-backend/internal/services"
)

const labelQueue = "queue:label-refresh"

// Pool refreshes content labels in the background. Ingestion responds with
// a null label on a cache miss and enqueues the content key here; the next
// heartbeat for the same content finds the label filled in.
type Pool struct {
	redis       *redis.Client
	enrichment  *services.EnrichmentService
	labelRepo   *repository.LabelRepo
	workerCount int
	stopChan    chan struct{}
}

func NewPool(redisClient *redis.Client, enrichment *services.EnrichmentService, labelRepo *repository.LabelRepo, workerCount int) *Pool {
	return &Pool{
		redis:       redisClient,
		enrichment:  enrichment,
		labelRepo:   labelRepo,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	log.Printf("Started %d label-refresh workers", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		result, err := p.redis.BLPop(ctx, 30*time.Second, labelQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}
		contentKey := result[1]

		// Heartbeats for one video enqueue the same key repeatedly; only
		// one worker should fetch it.
		lockKey := fmt.Sprintf("label_lock:%s", contentKey)
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 5*time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		if err := p.refresh(ctx, contentKey); err != nil {
			log.Printf("Worker %d: label refresh for %s failed: %v", id, contentKey, err)
		}

		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) refresh(ctx context.Context, contentKey string) error {
	label, err := p.enrichment.FetchLabel(ctx, contentKey)
	if err != nil {
		return err
	}

	if err := p.labelRepo.Upsert(ctx, label); err != nil {
		return fmt.Errorf("failed to store label: %w", err)
	}

	log.Printf("Refreshed label for %s: %q", contentKey, label.Title)
	return nil
}
