package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/powerfulqa/aszune-ai-bot-sub000/cache"
	"github.com/powerfulqa/aszune-ai-bot-sub000/config"
	"github.com/powerfulqa/aszune-ai-bot-sub000/database"
	apperrors "github.com/powerfulqa/aszune-ai-bot-sub000/errors"
	"github.com/powerfulqa/aszune-ai-bot-sub000/llmclient"
	"go.uber.org/zap"
)

const systemPrompt = "You are a helpful assistant. Answer the user's question concisely and accurately."

// writeNotifier lets the service nudge the maintenance scheduler after a
// cache write without owning it.
type writeNotifier interface {
	NotifyWrite()
}

// Answer is the resolved response for one question.
type Answer struct {
	Text         string
	Chunks       []string
	Cached       bool
	Similarity   float64
	NeedsRefresh bool
}

// Service dispatches questions: cache first, backend on a miss, and records
// the outcome in both the cache and the conversation log. Cache failures
// never surface to the caller; the worst case is a slower backend call.
type Service struct {
	cfg      *config.Config
	cache    *cache.Store
	llm      *llmclient.Client
	db       *database.PostgresStore // nil when transcript logging is disabled
	notifier writeNotifier
	logger   *zap.Logger

	refreshMu  sync.Mutex
	refreshing map[string]struct{}
}

func NewService(cfg *config.Config, store *cache.Store, llm *llmclient.Client, db *database.PostgresStore, notifier writeNotifier, logger *zap.Logger) *Service {
	return &Service{
		cfg:        cfg,
		cache:      store,
		llm:        llm,
		db:         db,
		notifier:   notifier,
		logger:     logger,
		refreshing: make(map[string]struct{}),
	}
}

// Ask resolves a question, preferring the cache. contextTag optionally
// narrows which cached answers may serve the question.
func (s *Service) Ask(ctx context.Context, question, contextTag string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "empty question")
	}

	if rec := s.cache.Find(question, contextTag); rec != nil {
		s.logger.Debug("Cache hit",
			zap.Bool("needs_refresh", rec.NeedsRefresh),
			zap.Float64("similarity", rec.Similarity))
		if rec.NeedsRefresh {
			s.refreshAsync(rec.Fingerprint, rec.Question, rec.ContextTag)
		}
		s.logExchangeAsync(question, rec.Answer, contextTag, true, rec.Similarity)
		return &Answer{
			Text:         rec.Answer,
			Chunks:       ChunkMessage(rec.Answer, s.cfg.MessageChunkLimit),
			Cached:       true,
			Similarity:   rec.Similarity,
			NeedsRefresh: rec.NeedsRefresh,
		}, nil
	}

	answerText, err := s.llm.Chat(ctx, []llmclient.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: question},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "backend call failed")
	}

	if s.cache.Insert(question, answerText, contextTag) && s.notifier != nil {
		s.notifier.NotifyWrite()
	}
	s.logExchangeAsync(question, answerText, contextTag, false, 0)

	return &Answer{
		Text:   answerText,
		Chunks: ChunkMessage(answerText, s.cfg.MessageChunkLimit),
	}, nil
}

// refreshAsync re-asks the backend for a stale record in the background.
// The stale answer was already served; a failed refresh is noted on the
// record and retried on a later hit. At most one refresh per fingerprint
// runs at a time.
func (s *Service) refreshAsync(fingerprint, question, contextTag string) {
	s.refreshMu.Lock()
	if _, busy := s.refreshing[fingerprint]; busy {
		s.refreshMu.Unlock()
		return
	}
	s.refreshing[fingerprint] = struct{}{}
	s.refreshMu.Unlock()

	go func() {
		defer func() {
			s.refreshMu.Lock()
			delete(s.refreshing, fingerprint)
			s.refreshMu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LLMRequestTimeout)
		defer cancel()

		answer, err := s.llm.Chat(ctx, []llmclient.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: question},
		})
		if err != nil {
			s.cache.RecordRefreshFailure(fingerprint, err.Error())
			s.logger.Warn("Background refresh failed, stale answer stays servable",
				zap.Error(err),
				zap.String("fingerprint", fingerprint))
			return
		}
		if s.cache.Insert(question, answer, contextTag) && s.notifier != nil {
			s.notifier.NotifyWrite()
		}
	}()
}

// logExchangeAsync writes the exchange to the conversation log without
// blocking the response path.
func (s *Service) logExchangeAsync(question, answer, contextTag string, cached bool, similarity float64) {
	if s.db == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		tags := []string{}
		if contextTag != "" {
			tags = append(tags, contextTag)
		}
		if cached {
			tags = append(tags, "cached")
		}
		err := s.db.LogConversation(ctx, database.Conversation{
			Question:   question,
			Answer:     answer,
			ContextTag: contextTag,
			Cached:     cached,
			Similarity: similarity,
			Tags:       tags,
		})
		if err != nil {
			s.logger.Warn("Failed to log conversation", zap.Error(err))
		}
	}()
}
