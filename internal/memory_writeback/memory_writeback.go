// Package memory_writeback persists conversation turns after a model
// response is produced, off the response path. Work is handed to a bounded
// queue so failures are observable and load sheds instead of piling up.
package memory_writeback //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/ameliahart/conversational_memory/internal/memory_settings"
	"github.com/ameliahart/conversational_memory/internal/semantic_memory"
	"github.com/ameliahart/conversational_memory/internal/short_term_memory"
	"github.com/ameliahart/conversational_memory/pkg/logger"
	"github.com/ameliahart/conversational_memory/pkg/metrics"
)

const (
	// DefaultQueueSize bounds pending writeback tasks per process.
	DefaultQueueSize = 256

	// DefaultWorkers is the number of goroutines draining the queue.
	DefaultWorkers = 4

	// Attributes assigned to salient statements captured from prompts.
	salientCategory   = semantic_memory.CategoryPreference
	salientImportance = 0.8
	salientConfidence = 0.9

	taskTimeout = 30 * time.Second
)

// saliencePatterns flag prompts worth turning into semantic memories:
// self-identification, stated preferences, explicit remember markers.
var saliencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is\b`),
	regexp.MustCompile(`(?i)\bcall me\b`),
	regexp.MustCompile(`(?i)\bi (?:like|love|prefer|hate|dislike|enjoy)\b`),
	regexp.MustCompile(`(?i)\bi(?:'m| am)\b`),
	regexp.MustCompile(`(?i)\bremember\b`),
	regexp.MustCompile(`(?i)\bimportant\b`),
}

type task struct {
	userID            string
	conversationID    string
	userPrompt        string
	assistantResponse string
}

// Config holds the dependencies for the recorder.
type Config struct {
	ShortTerm *short_term_memory.Store
	Semantic  *semantic_memory.Store
	Settings  *memory_settings.Service
	Logger    logger.Logger
	Metrics   *metrics.Metrics // optional
	QueueSize int              // defaults to DefaultQueueSize
	Workers   int              // defaults to DefaultWorkers
}

// Recorder accepts turns for asynchronous persistence. Record never blocks
// the caller; when the queue is full the turn is dropped and counted.
type Recorder struct {
	shortTerm *short_term_memory.Store
	semantic  *semantic_memory.Store
	settings  *memory_settings.Service
	log       logger.Logger
	metrics   *metrics.Metrics

	tasks chan task
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// New creates a recorder and starts its workers. Panics if required
// dependencies are missing.
func New(cfg Config) *Recorder {
	if cfg.ShortTerm == nil {
		panic("memory_writeback: short-term store is required")
	}
	if cfg.Semantic == nil {
		panic("memory_writeback: semantic store is required")
	}
	if cfg.Settings == nil {
		panic("memory_writeback: settings service is required")
	}
	if cfg.Logger == nil {
		panic("memory_writeback: logger is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	r := &Recorder{
		shortTerm: cfg.ShortTerm,
		semantic:  cfg.Semantic,
		settings:  cfg.Settings,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		tasks:     make(chan task, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Record queues a completed turn for persistence. Returns false when the
// queue is full and the turn was dropped.
func (r *Recorder) Record(userID, conversationID, userPrompt, assistantResponse string) bool {
	t := task{
		userID:            userID,
		conversationID:    conversationID,
		userPrompt:        userPrompt,
		assistantResponse: assistantResponse,
	}
	select {
	case r.tasks <- t:
		if r.metrics != nil {
			r.metrics.WritebackQueueGauge.Set(float64(len(r.tasks)))
		}
		return true
	default:
		if r.metrics != nil {
			r.metrics.WritebackDroppedCounter.Inc()
		}
		r.log.Warn("writeback queue full, turn dropped",
			logger.StringField("user_id", userID),
			logger.StringField("conversation_id", conversationID))
		return false
	}
}

// Close stops accepting work and drains queued tasks.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.tasks)
	})
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for t := range r.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		r.process(ctx, t)
		cancel()
		if r.metrics != nil {
			r.metrics.WritebackQueueGauge.Set(float64(len(r.tasks)))
		}
	}
}

// process persists one turn. Every failure here is logged and swallowed;
// nothing from writeback may surface to the user-facing response.
func (r *Recorder) process(ctx context.Context, t task) {
	settings, err := r.settings.Get(ctx, t.userID)
	if err != nil {
		r.fail("loading settings", t, err)
		settings = memory_settings.Defaults(t.userID)
	}
	if !settings.MemoryEnabled {
		return
	}

	if settings.ShortTermMemoryEnabled {
		if err := r.shortTerm.Append(ctx, t.conversationID, t.userID, short_term_memory.Entry{
			Role:    "user",
			Content: t.userPrompt,
		}); err != nil {
			r.fail("appending user turn", t, err)
		}
		if err := r.shortTerm.Append(ctx, t.conversationID, t.userID, short_term_memory.Entry{
			Role:    "assistant",
			Content: t.assistantResponse,
		}); err != nil {
			r.fail("appending assistant turn", t, err)
		}
	}

	if !settings.AutoExtractMemories || !isSalient(t.userPrompt) {
		return
	}
	_, err = r.semantic.Create(ctx, semantic_memory.Message{
		UserID:         t.userID,
		ConversationID: t.conversationID,
		Role:           "user",
		Content:        t.userPrompt,
	}, semantic_memory.CreateParams{
		Category:   salientCategory,
		Importance: salientImportance,
		Confidence: salientConfidence,
	}, settings)
	if err != nil {
		r.fail("creating semantic memory", t, err)
	}
}

func (r *Recorder) fail(stage string, t task, err error) {
	if r.metrics != nil {
		r.metrics.WritebackFailuresCounter.Inc()
	}
	r.log.Error("writeback failed",
		logger.StringField("stage", stage),
		logger.StringField("user_id", t.userID),
		logger.StringField("conversation_id", t.conversationID),
		logger.ErrorField(err))
}

// isSalient reports whether a prompt matches any salience pattern.
func isSalient(prompt string) bool {
	for _, p := range saliencePatterns {
		if p.MatchString(prompt) {
			return true
		}
	}
	return false
}
