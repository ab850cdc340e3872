package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/hair-advisor/internal/config"
	"github.com/kozaktomas/hair-advisor/internal/constants"
	"github.com/kozaktomas/hair-advisor/internal/database"
)

var (
	// ErrInvalidQuizData is returned when the quiz data is not valid JSON.
	ErrInvalidQuizData = errors.New("invalid JSON for quiz data")
	// ErrUnknownUser is returned by Chat for a user id with no stored submission.
	ErrUnknownUser = errors.New("unknown user")
	// ErrChatUnavailable is returned by Chat when submissions are not stored.
	ErrChatUnavailable = errors.New("chat requires submission storage")
)

// Result is the analyze response.
type Result struct {
	UserID         string          `json:"user_id"`
	ImageAnalysis  string          `json:"image_analysis"`
	QuizData       json.RawMessage `json:"quiz_data"`
	Recommendation Advice          `json:"recommendation"`
}

// Options configure an Advisor. Zero values use the defaults.
// An index replaces its knowledge base.
type Options struct {
	Knowledge     *KnowledgeBase
	Index         *VectorIndex // ranks by embedding, lexical ranking when nil
	ChatKnowledge *KnowledgeBase
	ChatIndex     *VectorIndex
	TopK          int
	Store         database.SubmissionWriter // nil disables persistence and chat
	Pricing       config.RequestPricing
	Logger        logrus.FieldLogger
	Now           func() time.Time
}

// Advisor turns a hair profile and an optional photo into a product recommendation
// and answers follow-up questions about it.
type Advisor struct {
	provider  Provider
	kb        *KnowledgeBase
	index     *VectorIndex
	chatKB    *KnowledgeBase
	chatIndex *VectorIndex
	topK      int
	store     database.SubmissionWriter
	pricing   config.RequestPricing
	log       logrus.FieldLogger
	now       func() time.Time
}

// New creates an Advisor backed by provider.
func New(provider Provider, opts Options) *Advisor {
	if opts.Index != nil {
		opts.Knowledge = opts.Index.Knowledge()
	}
	if opts.Knowledge == nil {
		opts.Knowledge = DefaultKnowledge()
	}
	if opts.ChatIndex != nil {
		opts.ChatKnowledge = opts.ChatIndex.Knowledge()
	}
	if opts.ChatKnowledge == nil {
		opts.ChatKnowledge = DefaultChatKnowledge()
	}
	if opts.TopK <= 0 {
		opts.TopK = constants.DefaultKnowledgeTopK
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Advisor{
		provider:  provider,
		kb:        opts.Knowledge,
		index:     opts.Index,
		chatKB:    opts.ChatKnowledge,
		chatIndex: opts.ChatIndex,
		topK:      opts.TopK,
		store:     opts.Store,
		pricing:   opts.Pricing,
		log:       opts.Logger,
		now:       opts.Now,
	}
}

// Recommend analyzes image (may be nil) and recommends a product line for quizData.
// The quiz data is echoed back as received.
func (a *Advisor) Recommend(ctx context.Context, quizData []byte, image []byte) (*Result, error) {
	if !json.Valid(quizData) {
		return nil, ErrInvalidQuizData
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, quizData); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuizData, err)
	}

	var inputTokens, outputTokens int

	imageAnalysis := NoImageAnalysis
	if len(image) > 0 {
		prepared, err := PrepareImage(image, constants.MaxImageSize)
		if err != nil {
			return nil, err
		}
		c, err := a.provider.DescribeImage(ctx, prepared, ImageInstruction)
		if err != nil {
			return nil, fmt.Errorf("image analysis: %w", err)
		}
		imageAnalysis = c.Text
		inputTokens += c.InputTokens
		outputTokens += c.OutputTokens
	}

	passages := a.retrieve(ctx, a.kb, a.index, BuildQuery(compact.String(), imageAnalysis))
	c, err := a.provider.Generate(ctx, BuildPrompt(passages, compact.String(), imageAnalysis))
	if err != nil {
		return nil, fmt.Errorf("recommendation: %w", err)
	}
	inputTokens += c.InputTokens
	outputTokens += c.OutputTokens

	res := &Result{
		UserID:         uuid.NewString(),
		ImageAnalysis:  imageAnalysis,
		QuizData:       json.RawMessage(compact.Bytes()),
		Recommendation: ParseAdvice(c.Text),
	}

	cost := a.pricing.Cost(inputTokens, outputTokens)
	log := a.log.WithFields(logrus.Fields{
		"user_id":       res.UserID,
		"provider":      a.provider.Name(),
		"has_image":     len(image) > 0,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"cost":          fmt.Sprintf("$%.6f", cost),
	})
	log.Info("recommendation generated")

	if a.store != nil {
		err := a.store.Save(ctx, database.StoredSubmission{
			UserID:          res.UserID,
			QuizData:        res.QuizData,
			HasImage:        len(image) > 0,
			ImageAnalysis:   imageAnalysis,
			RecommendedLine: deref(res.Recommendation.RecommendedLine),
			Reason:          deref(res.Recommendation.Reason),
			ProductRoutine:  deref(res.Recommendation.ProductRoutine),
			Alternative:     deref(res.Recommendation.Alternative),
			RawAdvice:       c.Text,
			Provider:        a.provider.Name(),
			Model:           a.provider.Model(),
			InputTokens:     inputTokens,
			OutputTokens:    outputTokens,
			Cost:            cost,
			CreatedAt:       a.now(),
		})
		if err != nil {
			// The recommendation is still returned.
			log.WithError(err).Warn("failed to store submission")
		}
	}

	return res, nil
}

// Chat answers a follow-up question for the user a stored submission was made for.
func (a *Advisor) Chat(ctx context.Context, userID, message string) (string, error) {
	if a.store == nil {
		return "", ErrChatUnavailable
	}
	sub, err := a.store.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load submission: %w", err)
	}
	if sub == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}

	passages := a.retrieve(ctx, a.chatKB, a.chatIndex, message)
	prompt := BuildChatPrompt(string(sub.QuizData), sub.ImageAnalysis, sub.RawAdvice, passages, message)
	c, err := a.provider.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"user_id":       userID,
		"provider":      a.provider.Name(),
		"input_tokens":  c.InputTokens,
		"output_tokens": c.OutputTokens,
		"cost":          fmt.Sprintf("$%.6f", a.pricing.Cost(c.InputTokens, c.OutputTokens)),
	}).Info("chat reply generated")
	return c.Text, nil
}

// retrieve ranks kb by embedding when index is set. A query that cannot be embedded
// is ranked lexically instead.
func (a *Advisor) retrieve(ctx context.Context, kb *KnowledgeBase, index *VectorIndex, query string) []string {
	if index != nil {
		passages, err := index.Retrieve(ctx, query, a.topK)
		if err == nil {
			return passages
		}
		a.log.WithError(err).Warn("embedding retrieval failed, ranking passages lexically")
	}
	return kb.Retrieve(query, a.topK)
}
