// Package chat is the caller-facing surface of the engine: it validates
// requests, enforces legacy ownership, picks the conversation a message
// belongs to and hands the turn to the agent loop.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nugget/heirloom/internal/agent"
	"github.com/nugget/heirloom/internal/conversation"
	"github.com/nugget/heirloom/internal/legacy"
	"github.com/nugget/heirloom/internal/usage"
)

// DefaultMaxMessageChars caps the length of a user message.
const DefaultMaxMessageChars = 8000

var (
	// ErrInvalidInput is wrapped by every *ValidationError.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when the legacy or conversation does not
	// exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")
)

// ValidationError describes one rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Owners answers whether a legacy belongs to a user.
type Owners interface {
	LegacyForUser(ctx context.Context, legacyID, userID string) (legacy.Legacy, error)
}

// TurnRunner answers one user message.
type TurnRunner interface {
	Run(ctx context.Context, turn agent.Turn) (*agent.Result, error)
}

// UsageRecorder stores per-turn token usage.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// SendRequest is one user message.
type SendRequest struct {
	UserID   string `json:"-"`
	LegacyID string `json:"-"`
	// ConversationID selects an existing conversation. Empty continues
	// the most recent one, or starts a new one.
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"message"`
}

// SendResult is the reply to a SendRequest.
type SendResult struct {
	ConversationID string               `json:"conversation_id"`
	Reply          conversation.Message `json:"reply"`
}

// Transcript is a conversation and its messages, oldest first. Both are
// empty when the caller has no conversation yet.
type Transcript struct {
	Conversation *conversation.Conversation `json:"conversation"`
	Messages     []conversation.Message     `json:"messages"`
}

// Config tunes the service.
type Config struct {
	MaxMessageChars int
}

// Service implements the chat operations.
type Service struct {
	owners        Owners
	conversations conversation.Store
	runner        TurnRunner
	usage         UsageRecorder
	maxChars      int
	logger        *slog.Logger
}

// NewService creates a chat service. recorder may be nil to skip
// accounting.
func NewService(owners Owners, convs conversation.Store, runner TurnRunner, recorder UsageRecorder, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxMessageChars <= 0 {
		cfg.MaxMessageChars = DefaultMaxMessageChars
	}
	return &Service{
		owners:        owners,
		conversations: convs,
		runner:        runner,
		usage:         recorder,
		maxChars:      cfg.MaxMessageChars,
		logger:        logger,
	}
}

// SendMessage validates req, resolves its conversation and runs one
// turn. Validation happens before anything is written or sent to the
// model.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := s.validateSend(req); err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, req.LegacyID, req.UserID); err != nil {
		return nil, err
	}

	conv, err := s.conversationFor(ctx, req.UserID, req.LegacyID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	res, err := s.runner.Run(ctx, agent.Turn{
		ConversationID: conv.ID,
		LegacyID:       req.LegacyID,
		UserID:         req.UserID,
		Text:           strings.TrimSpace(req.Text),
	})
	if err != nil {
		return nil, fmt.Errorf("run turn: %w", err)
	}

	s.recordUsage(ctx, req, conv.ID, res)
	return &SendResult{ConversationID: conv.ID, Reply: res.Reply}, nil
}

// GetConversation returns the selected conversation, or the caller's
// most recent one when conversationID is empty.
func (s *Service) GetConversation(ctx context.Context, userID, legacyID, conversationID string) (*Transcript, error) {
	if err := validateIDs(userID, legacyID, conversationID); err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, legacyID, userID); err != nil {
		return nil, err
	}

	conv, err := s.existing(ctx, userID, legacyID, conversationID)
	if errors.Is(err, conversation.ErrNotFound) {
		return &Transcript{Messages: []conversation.Message{}}, nil
	}
	if err != nil {
		return nil, err
	}

	msgs, err := s.conversations.Messages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	return &Transcript{Conversation: &conv, Messages: msgs}, nil
}

// ClearConversation deletes the selected conversation, or the caller's
// most recent one, reporting whether anything was deleted.
func (s *Service) ClearConversation(ctx context.Context, userID, legacyID, conversationID string) (bool, error) {
	if err := validateIDs(userID, legacyID, conversationID); err != nil {
		return false, err
	}
	if err := s.checkOwner(ctx, legacyID, userID); err != nil {
		return false, err
	}

	conv, err := s.existing(ctx, userID, legacyID, conversationID)
	if errors.Is(err, conversation.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	deleted, err := s.conversations.Delete(ctx, conv.ID)
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	if deleted {
		s.logger.Info("conversation cleared", "conversation", conv.ID, "legacy", legacyID)
	}
	return deleted, nil
}

func (s *Service) validateSend(req SendRequest) error {
	if err := validateIDs(req.UserID, req.LegacyID, req.ConversationID); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(req.Text); n > s.maxChars {
		return &ValidationError{Field: "message", Reason: fmt.Sprintf("%d characters exceeds the limit of %d", n, s.maxChars)}
	}
	return nil
}

func validateIDs(userID, legacyID, conversationID string) error {
	if err := validateID("user_id", userID, true); err != nil {
		return err
	}
	if err := validateID("legacy_id", legacyID, true); err != nil {
		return err
	}
	return validateID("conversation_id", conversationID, false)
}

func validateID(field, value string, required bool) error {
	if value == "" {
		if required {
			return &ValidationError{Field: field, Reason: "is required"}
		}
		return nil
	}
	if _, err := uuid.Parse(value); err != nil {
		return &ValidationError{Field: field, Reason: "must be a UUID"}
	}
	return nil
}

func (s *Service) checkOwner(ctx context.Context, legacyID, userID string) error {
	_, err := s.owners.LegacyForUser(ctx, legacyID, userID)
	switch {
	case errors.Is(err, legacy.ErrNotFound):
		return fmt.Errorf("legacy %s: %w", legacyID, ErrNotFound)
	case err != nil:
		return fmt.Errorf("check legacy owner: %w", err)
	}
	return nil
}

// existing finds the selected or latest conversation. A conversation
// that belongs to a different legacy or user is reported as missing.
func (s *Service) existing(ctx context.Context, userID, legacyID, conversationID string) (conversation.Conversation, error) {
	if conversationID == "" {
		return s.conversations.Latest(ctx, legacyID, userID)
	}
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if conv.LegacyID != legacyID || conv.UserID != userID {
		return conversation.Conversation{}, conversation.ErrNotFound
	}
	return conv, nil
}

// conversationFor returns the conversation a new message belongs to. An
// explicit ID must exist; otherwise the latest conversation is continued
// or a new one started.
func (s *Service) conversationFor(ctx context.Context, userID, legacyID, conversationID string) (conversation.Conversation, error) {
	conv, err := s.existing(ctx, userID, legacyID, conversationID)
	switch {
	case err == nil:
		return conv, nil
	case !errors.Is(err, conversation.ErrNotFound):
		return conversation.Conversation{}, fmt.Errorf("load conversation: %w", err)
	case conversationID != "":
		return conversation.Conversation{}, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	conv, err = s.conversations.Create(ctx, legacyID, userID)
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Info("conversation started", "conversation", conv.ID, "legacy", legacyID)
	return conv, nil
}

func (s *Service) recordUsage(ctx context.Context, req SendRequest, conversationID string, res *agent.Result) {
	if s.usage == nil {
		return
	}
	rec := usage.Record{
		LegacyID:       req.LegacyID,
		UserID:         req.UserID,
		ConversationID: conversationID,
		Model:          res.Reply.Model,
		Provider:       res.Provider,
		InputTokens:    res.Reply.InputTokens,
		OutputTokens:   res.Reply.OutputTokens,
		ToolCalls:      len(res.Reply.ToolCalls),
		Rounds:         res.Rounds,
	}
	if err := s.usage.Record(ctx, rec); err != nil {
		s.logger.Warn("failed to record usage", "conversation", conversationID, "error", err)
	}
}
