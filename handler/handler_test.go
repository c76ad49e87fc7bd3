package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"coach-agent/internal/domain"
	"coach-agent/internal/usecase"
)

type stubCoach struct {
	reply   usecase.Reply
	turns   []domain.Turn
	summary usecase.HomeSummary
	err     error

	calls     []string
	userID    int64
	input     usecase.ContinueInput
	expenseID int64
}

func (s *stubCoach) record(name string, userID int64) {
	s.calls = append(s.calls, name)
	s.userID = userID
}

func (s *stubCoach) StartGoalDialogue(_ context.Context, userID int64) (usecase.Reply, error) {
	s.record("goal", userID)
	return s.reply, s.err
}

func (s *stubCoach) StartExpenseDialogue(_ context.Context, userID int64) (usecase.Reply, error) {
	s.record("expense", userID)
	return s.reply, s.err
}

func (s *stubCoach) ContinueDialogue(_ context.Context, in usecase.ContinueInput) (usecase.Reply, error) {
	s.record("message", in.UserID)
	s.input = in
	return s.reply, s.err
}

func (s *stubCoach) RecordExpenseFeedback(_ context.Context, userID, expenseID int64) (usecase.Reply, error) {
	s.record("feedback", userID)
	s.expenseID = expenseID
	return s.reply, s.err
}

func (s *stubCoach) History(_ context.Context, userID int64) ([]domain.Turn, error) {
	s.record("history", userID)
	return s.turns, s.err
}

func (s *stubCoach) Summary(_ context.Context, userID int64) (usecase.HomeSummary, error) {
	s.record("summary", userID)
	return s.summary, s.err
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, svc *stubCoach) *Handler {
	t.Helper()
	h, err := NewHandler(svc)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_Routes(t *testing.T) {
	cases := []struct {
		method string
		path   string
		body   string
		call   string
	}{
		{http.MethodPost, "/coach/goal-consult/7", "", "goal"},
		{http.MethodPost, "/coach/expense-consult/7", "", "expense"},
		{http.MethodPost, "/coach/message/7", `{"intent":"FREE_CHAT","message":"안녕"}`, "message"},
		{http.MethodPost, "/coach/expense-feedback/7/", `{"expenseId":3}`, "feedback"},
		{http.MethodGet, "/coach/history/7", "", "history"},
		{http.MethodGet, "/home/summary/7", "", "summary"},
	}
	for _, tc := range cases {
		t.Run(tc.call, func(t *testing.T) {
			svc := &stubCoach{}
			resp, err := newTestHandler(t, svc).Handle(context.Background(), makeEvent(tc.method, tc.path, tc.body))
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
			require.Equal(t, []string{tc.call}, svc.calls)
			require.Equal(t, int64(7), svc.userID)
			require.Equal(t, "application/json", resp.Headers["Content-Type"])
		})
	}
}

func TestHandle_StartGoalReply(t *testing.T) {
	svc := &stubCoach{reply: usecase.Reply{Message: "목표를 세워봐요!", Intent: domain.IntentGoalSetting, TurnID: 3}}
	resp, err := newTestHandler(t, svc).Handle(context.Background(), makeEvent(http.MethodPost, "/coach/goal-consult/7", ""))
	require.NoError(t, err)

	out := parseBody[usecase.Reply](t, resp.Body)
	require.Equal(t, "목표를 세워봐요!", out.Message)
	require.Equal(t, domain.IntentGoalSetting, out.Intent)
	require.Equal(t, int64(3), out.TurnID)
	require.NotEmpty(t, resp.Headers[correlationHeader])
}

func TestHandle_MessagePassesInput(t *testing.T) {
	svc := &stubCoach{reply: usecase.Reply{
		Message:    "30만원 저축 어때요?",
		Intent:     domain.IntentGoalSetting,
		Suggestion: &domain.GoalSuggestion{GoalType: "savings", TargetAmount: 300000, DurationMonths: 1},
	}}
	resp, err := newTestHandler(t, svc).Handle(context.Background(),
		makeEvent(http.MethodPost, "/coach/message/42", `{"intent":"goal_setting","message":"저축하고 싶어요"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.ContinueInput{UserID: 42, Intent: "goal_setting", Message: "저축하고 싶어요"}, svc.input)

	out := parseBody[usecase.Reply](t, resp.Body)
	require.NotNil(t, out.Suggestion)
	require.Equal(t, int64(300000), out.Suggestion.TargetAmount)
}

func TestHandle_ExpenseFeedbackPassesExpenseID(t *testing.T) {
	svc := &stubCoach{reply: usecase.Reply{TurnID: 12, Intent: domain.IntentExpenseRecordFeedback, Message: "좋아요"}}
	resp, err := newTestHandler(t, svc).Handle(context.Background(), makeEvent(http.MethodPost, "/coach/expense-feedback/7", `{"expenseId":42}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int64(7), svc.userID)
	require.Equal(t, int64(42), svc.expenseID)
}

func TestHandle_HistoryBody(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	svc := &stubCoach{turns: []domain.Turn{
		{ID: 1, UserID: 7, Sender: domain.SenderAI, Intent: domain.IntentFreeChat, Content: "안녕하세요", CreatedAt: created},
	}}
	resp, err := newTestHandler(t, svc).Handle(context.Background(), makeEvent(http.MethodGet, "/coach/history/7", ""))
	require.NoError(t, err)

	out := parseBody[historyResponse](t, resp.Body)
	require.Equal(t, int64(7), out.UserID)
	require.Len(t, out.Turns, 1)
	require.Equal(t, "안녕하세요", out.Turns[0].Content)
	require.True(t, created.Equal(out.Turns[0].CreatedAt))
}

func TestHandle_InvalidRequests(t *testing.T) {
	cases := []struct {
		name   string
		event  events.APIGatewayProxyRequest
		status int
		code   string
		reason string
	}{
		{"bad user id", makeEvent(http.MethodPost, "/coach/goal-consult/abc", ""), http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_user_id"},
		{"zero user id", makeEvent(http.MethodGet, "/home/summary/0", ""), http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_user_id"},
		{"invalid json", makeEvent(http.MethodPost, "/coach/message/7", "not-json"), http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_json"},
		{"empty body", makeEvent(http.MethodPost, "/coach/message/7", " "), http.StatusBadRequest, string(usecase.ErrorInvalidInput), "empty_body"},
		{"string expense id", makeEvent(http.MethodPost, "/coach/expense-feedback/7", `{"expenseId":"abc"}`), http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_json"},
		{"wrong method", makeEvent(http.MethodGet, "/coach/message/7", ""), http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", ""},
		{"unknown route", makeEvent(http.MethodGet, "/ask", ""), http.StatusNotFound, "ROUTE_NOT_FOUND", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCoach{}
			resp, err := newTestHandler(t, svc).Handle(context.Background(), tc.event)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Empty(t, svc.calls)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.Equal(t, tc.reason, out.Reason)
			require.Equal(t, resp.Headers[correlationHeader], out.CorrelationID)
		})
	}
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_message"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "user_not_found"}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound)},
		{name: "unavailable", err: &usecase.Error{Code: usecase.ErrorServiceUnavailable, Reason: "gemini_unavailable"}, status: http.StatusServiceUnavailable, code: string(usecase.ErrorServiceUnavailable)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "gemini_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "dynamodb_write_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCoach{err: tc.err}
			resp, err := newTestHandler(t, svc).Handle(context.Background(),
				makeEvent(http.MethodPost, "/coach/message/7", `{"intent":"FREE_CHAT","message":"hi"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	svc := &stubCoach{}
	event := makeEvent(http.MethodGet, "/home/summary/7", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := newTestHandler(t, svc).Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers[correlationHeader])
}
