package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
	yt "github.com/kkdai/youtube/v2"
	"github.com/redis/go-redis/v9"

	"immersia-backend/internal/models"
	"immersia-backend/internal/repository"
)

const (
	labelCacheTTL   = time.Hour
	labelQueue      = "queue:label-refresh"
	labelCachePrefx = "label:"
)

// EnrichmentService resolves human-readable labels for content keys and the
// caller's target-language setting. Every lookup is best-effort: failures
// surface as nil fields on the ingestion response, never as request errors.
type EnrichmentService struct {
	labelRepo     *repository.LabelRepo
	userRepo      *repository.UserRepo
	redis         *redis.Client
	ytClient      *yt.Client
	transcriptAPI *ytapi.YouTubeTranscriptApi
	httpClient    *http.Client
}

func NewEnrichmentService(labelRepo *repository.LabelRepo, userRepo *repository.UserRepo, redisClient *redis.Client) *EnrichmentService {
	return &EnrichmentService{
		labelRepo:     labelRepo,
		userRepo:      userRepo,
		redis:         redisClient,
		ytClient:      &yt.Client{},
		transcriptAPI: ytapi.NewYouTubeTranscriptApi(),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Enrich returns the label and target language for an accepted activity.
// Either may be nil; that is a degraded response, not a failure.
func (s *EnrichmentService) Enrich(ctx context.Context, userID uuid.UUID, contentKey string) (*models.ContentLabel, *string) {
	label := s.lookupLabel(ctx, contentKey)

	lang, err := s.userRepo.GetTargetLanguage(ctx, userID)
	if err != nil {
		log.Printf("enrichment: target language lookup failed for %s: %v", userID, err)
		lang = nil
	}

	return label, lang
}

// lookupLabel checks the Redis cache, then the labels table. A full miss
// queues a background fetch and yields nil for this request; the label is
// there for the next heartbeat.
func (s *EnrichmentService) lookupLabel(ctx context.Context, contentKey string) *models.ContentLabel {
	if cached, err := s.redis.Get(ctx, labelCachePrefx+contentKey).Result(); err == nil {
		var label models.ContentLabel
		if err := json.Unmarshal([]byte(cached), &label); err == nil {
			return &label
		}
	}

	label, err := s.labelRepo.Get(ctx, contentKey)
	if err == nil {
		s.cacheLabel(ctx, label)
		return label
	}

	if err := s.redis.LPush(ctx, labelQueue, contentKey).Err(); err != nil {
		log.Printf("enrichment: queueing label refresh for %s failed: %v", contentKey, err)
	}
	return nil
}

func (s *EnrichmentService) cacheLabel(ctx context.Context, label *models.ContentLabel) {
	encoded, err := json.Marshal(label)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, labelCachePrefx+label.ContentKey, encoded, labelCacheTTL).Err(); err != nil {
		log.Printf("enrichment: caching label %s failed: %v", label.ContentKey, err)
	}
}

// FetchLabel fetches fresh metadata for a content key from the platform.
// Called from the background refresh worker, not from request handlers.
func (s *EnrichmentService) FetchLabel(ctx context.Context, contentKey string) (*models.ContentLabel, error) {
	source, videoID, found := strings.Cut(contentKey, ":")
	if !found || videoID == "" {
		return nil, fmt.Errorf("malformed content key %q", contentKey)
	}
	if source != models.SourceYouTube {
		return nil, fmt.Errorf("no label source for %q", source)
	}

	label := &models.ContentLabel{ContentKey: contentKey}

	video, err := s.ytClient.GetVideoContext(ctx, videoID)
	if err == nil {
		label.Title = video.Title
		label.Author = video.Author
		label.DurationSeconds = int(video.Duration.Seconds())
		for _, track := range video.CaptionTracks {
			if track.LanguageCode != "" {
				label.CaptionLangs = append(label.CaptionLangs, track.LanguageCode)
			}
		}
	} else {
		// Metadata client gets blocked now and then; oEmbed still answers.
		log.Printf("enrichment: metadata fetch for %s failed (%v), trying oEmbed", videoID, err)
		if oErr := s.fetchViaOEmbed(ctx, videoID, label); oErr != nil {
			return nil, fmt.Errorf("metadata (%v) and oEmbed (%v) both failed", err, oErr)
		}
	}

	// Verify the caption tracks are actually fetchable before advertising
	// them. A listed track with no retrievable transcript is worthless to
	// the immersion dashboard.
	if len(label.CaptionLangs) > 0 {
		if _, err := s.transcriptAPI.GetTranscript(videoID, label.CaptionLangs); err != nil {
			log.Printf("enrichment: caption verification for %s failed: %v", videoID, err)
			label.CaptionLangs = nil
		}
	}

	return label, nil
}

func (s *EnrichmentService) fetchViaOEmbed(ctx context.Context, videoID string, label *models.ContentLabel) error {
	oembedURL := "https://www.youtube.com/oembed?url=https://www.youtube.com/watch?v=" + videoID + "&format=json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, oembedURL, nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oEmbed returned %d", resp.StatusCode)
	}

	var oembed struct {
		Title      string `json:"title"`
		AuthorName string `json:"author_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oembed); err != nil {
		return err
	}

	label.Title = oembed.Title
	label.Author = oembed.AuthorName
	return nil
}
