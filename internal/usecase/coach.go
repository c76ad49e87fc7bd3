package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"coach-agent/internal/domain"
)

const (
	defaultHistoryLimit  = 20
	defaultMaxMessageLen = 1000
)

// Gateway is the completion backend. Implementations own retry and error
// classification.
type Gateway interface {
	InitialMessage(ctx context.Context, prompt string) (string, error)
	ContinueChat(ctx context.Context, prompt string, history []domain.ChatMessage, userMessage string) (string, error)
}

// TurnStore is the append-only conversation log.
type TurnStore interface {
	AppendTurn(ctx context.Context, turn domain.Turn) (domain.Turn, error)
	LastTurns(ctx context.Context, userID int64, n int) ([]domain.Turn, error)
	AllTurns(ctx context.Context, userID int64) ([]domain.Turn, error)
}

type CoachService struct {
	agg           *Aggregator
	store         TurnStore
	gateway       Gateway
	historyLimit  int
	maxMessageLen int
	locks         *keyLock
	logger        *slog.Logger
}

type ContinueInput struct {
	UserID  int64
	Intent  domain.Intent
	Message string
}

// Reply is the outcome of one coaching operation. Mission is set only for
// expense dialogues, Suggestion only for goal-setting replies that mention
// an amount.
type Reply struct {
	Message    string                 `json:"message"`
	Intent     domain.Intent          `json:"intent"`
	TurnID     int64                  `json:"turnId"`
	Mission    string                 `json:"mission,omitempty"`
	Suggestion *domain.GoalSuggestion `json:"suggestion,omitempty"`
}

func NewCoachService(l Ledger, s TurnStore, g Gateway, historyLimit, maxMessageLen int) (*CoachService, error) {
	agg, err := NewAggregator(l)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("usecase: turn store must not be nil")
	}
	if g == nil {
		return nil, errors.New("usecase: gateway must not be nil")
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessageLen
	}
	return &CoachService{
		agg:           agg,
		store:         s,
		gateway:       g,
		historyLimit:  historyLimit,
		maxMessageLen: maxMessageLen,
		locks:         newKeyLock(),
		logger:        slog.Default(),
	}, nil
}

// StartGoalDialogue opens a goal-setting conversation with an AI greeting.
func (s *CoachService) StartGoalDialogue(ctx context.Context, userID int64) (Reply, error) {
	return s.startDialogue(ctx, userID, domain.IntentGoalSetting)
}

// StartExpenseDialogue opens an expense review and attaches a mission of the
// day chosen from the top spending category.
func (s *CoachService) StartExpenseDialogue(ctx context.Context, userID int64) (Reply, error) {
	return s.startDialogue(ctx, userID, domain.IntentExpenseConsult)
}

func (s *CoachService) startDialogue(ctx context.Context, userID int64, intent domain.Intent) (Reply, error) {
	if userID <= 0 {
		return Reply{}, newError(ErrorInvalidInput, "invalid_user_id", nil)
	}
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return Reply{}, newError(ErrorInternal, "lock_wait_aborted", err)
	}
	defer unlock()

	cc, err := s.agg.Aggregate(ctx, userID)
	if err != nil {
		return Reply{}, ledgerError("ledger_read_error", err)
	}

	text, err := s.gateway.InitialMessage(ctx, BuildPrompt(intent, cc))
	if err != nil {
		s.logger.Error("initial message failed", "userId", userID, "intent", intent, "err", err)
		return Reply{}, gatewayError(err)
	}

	turn, err := s.store.AppendTurn(ctx, domain.Turn{
		UserID:  userID,
		Sender:  domain.SenderAI,
		Intent:  intent,
		Content: text,
	})
	if err != nil {
		return Reply{}, newError(ErrorInternal, "dynamodb_write_error", err)
	}
	s.logger.Info("dialogue started", "userId", userID, "intent", intent, "turnId", turn.ID)

	reply := Reply{Message: text, Intent: intent, TurnID: turn.ID}
	if intent == domain.IntentExpenseConsult {
		reply.Mission = MissionFor(cc.TopSpending)
	}
	return reply, nil
}

// ContinueDialogue records the user's message, then asks the backend for the
// next AI turn given recent history. The user turn stays recorded even when
// a later step fails.
func (s *CoachService) ContinueDialogue(ctx context.Context, in ContinueInput) (Reply, error) {
	if in.UserID <= 0 {
		return Reply{}, newError(ErrorInvalidInput, "invalid_user_id", nil)
	}
	intent, err := domain.ParseIntent(string(in.Intent))
	if err != nil {
		return Reply{}, newError(ErrorInvalidInput, "invalid_intent", err)
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return Reply{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.maxMessageLen {
		return Reply{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	unlock, err := s.locks.Lock(ctx, in.UserID)
	if err != nil {
		return Reply{}, newError(ErrorInternal, "lock_wait_aborted", err)
	}
	defer unlock()

	userTurn, err := s.store.AppendTurn(ctx, domain.Turn{
		UserID:  in.UserID,
		Sender:  domain.SenderUser,
		Intent:  intent,
		Content: message,
	})
	if err != nil {
		return Reply{}, newError(ErrorInternal, "dynamodb_write_error", err)
	}

	cc, err := s.agg.Aggregate(ctx, in.UserID)
	if err != nil {
		return Reply{}, ledgerError("ledger_read_error", err)
	}
	prompt := BuildPrompt(intent, cc)

	// One extra row covers the user turn appended above.
	recent, err := s.store.LastTurns(ctx, in.UserID, s.historyLimit+1)
	if err != nil {
		return Reply{}, newError(ErrorInternal, "dynamodb_history_error", err)
	}
	history := historyMessages(recent, userTurn.ID, s.historyLimit)

	text, err := s.gateway.ContinueChat(ctx, prompt, history, message)
	if err != nil {
		s.logger.Error("continue chat failed", "userId", in.UserID, "intent", intent, "userTurnId", userTurn.ID, "err", err)
		return Reply{}, gatewayError(err)
	}

	aiTurn, err := s.store.AppendTurn(ctx, domain.Turn{
		UserID:  in.UserID,
		Sender:  domain.SenderAI,
		Intent:  intent,
		Content: text,
	})
	if err != nil {
		return Reply{}, newError(ErrorInternal, "dynamodb_write_error", err)
	}

	reply := Reply{Message: text, Intent: intent, TurnID: aiTurn.ID}
	if intent == domain.IntentGoalSetting {
		reply.Suggestion = ExtractGoal(text)
	}
	return reply, nil
}

// historyMessages turns the store's newest-first slice into at most limit
// chronological chat messages, leaving out the turn with id skip.
func historyMessages(recent []domain.Turn, skip int64, limit int) []domain.ChatMessage {
	kept := make([]domain.Turn, 0, len(recent))
	for _, t := range recent {
		if t.ID == skip {
			continue
		}
		if len(kept) == limit {
			break
		}
		kept = append(kept, t)
	}
	out := make([]domain.ChatMessage, 0, len(kept))
	for i := len(kept) - 1; i >= 0; i-- {
		out = append(out, domain.ChatMessage{Role: kept[i].ChatRole(), Content: kept[i].Content})
	}
	return out
}

// RecordExpenseFeedback replies with short feedback on an expense the user
// has already saved to the ledger. The expense is loaded by id so the month
// totals include it. Prior dialogue is not sent.
func (s *CoachService) RecordExpenseFeedback(ctx context.Context, userID, expenseID int64) (Reply, error) {
	if userID <= 0 {
		return Reply{}, newError(ErrorInvalidInput, "invalid_user_id", nil)
	}
	if expenseID <= 0 {
		return Reply{}, newError(ErrorInvalidInput, "invalid_expense_id", nil)
	}

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return Reply{}, newError(ErrorInternal, "lock_wait_aborted", err)
	}
	defer unlock()

	e, err := s.agg.ledger.Expense(ctx, userID, expenseID)
	if errors.Is(err, domain.ErrNotFound) {
		return Reply{}, newError(ErrorNotFound, "expense_not_found", err)
	}
	if err != nil {
		return Reply{}, newError(ErrorInternal, "ledger_read_error", err)
	}
	if cat, err := domain.ParseCategory(string(e.Category)); err == nil {
		e.Category = cat
	}

	content := expenseRecordContent(e)
	if _, err := s.store.AppendTurn(ctx, domain.Turn{
		UserID:  userID,
		Sender:  domain.SenderUser,
		Intent:  domain.IntentExpenseRecordFeedback,
		Content: content,
	}); err != nil {
		return Reply{}, newError(ErrorInternal, "dynamodb_write_error", err)
	}

	fc, err := s.agg.FeedbackContext(ctx, userID, e)
	if err != nil {
		return Reply{}, ledgerError("ledger_read_error", err)
	}

	text, err := s.gateway.ContinueChat(ctx, BuildFeedbackPrompt(fc), []domain.ChatMessage{}, content)
	if err != nil {
		s.logger.Error("expense feedback failed", "userId", userID, "err", err)
		return Reply{}, gatewayError(err)
	}

	aiTurn, err := s.store.AppendTurn(ctx, domain.Turn{
		UserID:  userID,
		Sender:  domain.SenderAI,
		Intent:  domain.IntentExpenseRecordFeedback,
		Content: text,
	})
	if err != nil {
		return Reply{}, newError(ErrorInternal, "dynamodb_write_error", err)
	}
	s.logger.Info("expense feedback recorded", "userId", userID, "turnId", aiTurn.ID, "hasTag", fc.Tag != nil)

	return Reply{Message: text, Intent: domain.IntentExpenseRecordFeedback, TurnID: aiTurn.ID}, nil
}

func expenseRecordContent(e domain.Expense) string {
	tag := strings.TrimSpace(e.Tag)
	if tag == "" {
		tag = "없음"
	}
	return fmt.Sprintf("[지출 기록 📝] %s | %s | %s (태그: #%s)", e.Category.Label(), e.Name, formatWon(e.Amount), tag)
}

// History returns the user's full conversation, oldest first.
func (s *CoachService) History(ctx context.Context, userID int64) ([]domain.Turn, error) {
	if userID <= 0 {
		return nil, newError(ErrorInvalidInput, "invalid_user_id", nil)
	}
	turns, err := s.store.AllTurns(ctx, userID)
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_history_error", err)
	}
	return turns, nil
}

// Summary returns the month-to-date home summary.
func (s *CoachService) Summary(ctx context.Context, userID int64) (HomeSummary, error) {
	if userID <= 0 {
		return HomeSummary{}, newError(ErrorInvalidInput, "invalid_user_id", nil)
	}
	sum, err := s.agg.Summary(ctx, userID)
	if err != nil {
		return HomeSummary{}, ledgerError("ledger_read_error", err)
	}
	return sum, nil
}
