package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"coach-agent/internal/domain"
	"coach-agent/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// CoachService is the slice of usecase.CoachService the routes call.
type CoachService interface {
	StartGoalDialogue(ctx context.Context, userID int64) (usecase.Reply, error)
	StartExpenseDialogue(ctx context.Context, userID int64) (usecase.Reply, error)
	ContinueDialogue(ctx context.Context, in usecase.ContinueInput) (usecase.Reply, error)
	RecordExpenseFeedback(ctx context.Context, userID, expenseID int64) (usecase.Reply, error)
	History(ctx context.Context, userID int64) ([]domain.Turn, error)
	Summary(ctx context.Context, userID int64) (usecase.HomeSummary, error)
}

type Handler struct {
	svc    CoachService
	logger *slog.Logger
}

func NewHandler(svc CoachService) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: coach service must not be nil")
	}
	return &Handler{svc: svc, logger: slog.Default()}, nil
}

type messageRequest struct {
	Intent  string `json:"intent"`
	Message string `json:"message"`
}

// feedbackRequest names an expense already saved in the ledger.
type feedbackRequest struct {
	ExpenseID int64 `json:"expenseId"`
}

type historyResponse struct {
	UserID int64         `json:"userId"`
	Turns  []domain.Turn `json:"turns"`
}

type errorResponse struct {
	Error         string `json:"error"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlationId"`
}

type route struct {
	method string
	prefix string
	call   func(h *Handler, ctx context.Context, userID int64, body string) (any, error)
}

var routes = []route{
	{http.MethodPost, "/coach/goal-consult/", (*Handler).goalConsult},
	{http.MethodPost, "/coach/expense-consult/", (*Handler).expenseConsult},
	{http.MethodPost, "/coach/message/", (*Handler).message},
	{http.MethodPost, "/coach/expense-feedback/", (*Handler).expenseFeedback},
	{http.MethodGet, "/coach/history/", (*Handler).history},
	{http.MethodGet, "/home/summary/", (*Handler).summary},
}

// Handle dispatches an API Gateway proxy request to its route. Failures are
// rendered as JSON bodies; the returned error is always nil.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlationId", correlationID, "method", req.HTTPMethod, "path", req.Path)
	start := time.Now()

	path := strings.TrimRight(req.Path, "/")
	for _, rt := range routes {
		if !strings.HasPrefix(path, rt.prefix) {
			continue
		}
		if req.HTTPMethod != rt.method {
			return errorJSON(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "", correlationID), nil
		}
		userID, err := strconv.ParseInt(strings.TrimPrefix(path, rt.prefix), 10, 64)
		if err != nil || userID <= 0 {
			return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_user_id", correlationID), nil
		}

		out, err := rt.call(h, ctx, userID, req.Body)
		if err != nil {
			status, code, reason := mapError(err)
			logger.Warn("request failed", "userId", userID, "status", status, "code", code, "reason", reason, "err", err)
			return errorJSON(status, code, reason, correlationID), nil
		}
		logger.Info("request served", "userId", userID, "duration", time.Since(start))
		return writeJSON(http.StatusOK, out, correlationID), nil
	}
	return errorJSON(http.StatusNotFound, "ROUTE_NOT_FOUND", "", correlationID), nil
}

func (h *Handler) goalConsult(ctx context.Context, userID int64, _ string) (any, error) {
	return h.svc.StartGoalDialogue(ctx, userID)
}

func (h *Handler) expenseConsult(ctx context.Context, userID int64, _ string) (any, error) {
	return h.svc.StartExpenseDialogue(ctx, userID)
}

func (h *Handler) message(ctx context.Context, userID int64, body string) (any, error) {
	var req messageRequest
	if err := decodeBody(body, &req); err != nil {
		return nil, err
	}
	return h.svc.ContinueDialogue(ctx, usecase.ContinueInput{
		UserID:  userID,
		Intent:  domain.Intent(req.Intent),
		Message: req.Message,
	})
}

func (h *Handler) expenseFeedback(ctx context.Context, userID int64, body string) (any, error) {
	var req feedbackRequest
	if err := decodeBody(body, &req); err != nil {
		return nil, err
	}
	return h.svc.RecordExpenseFeedback(ctx, userID, req.ExpenseID)
}

func (h *Handler) history(ctx context.Context, userID int64, _ string) (any, error) {
	turns, err := h.svc.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	return historyResponse{UserID: userID, Turns: turns}, nil
}

func (h *Handler) summary(ctx context.Context, userID int64, _ string) (any, error) {
	return h.svc.Summary(ctx, userID)
}

func decodeBody(body string, v any) error {
	if strings.TrimSpace(body) == "" {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_body"}
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: err}
	}
	return nil
}

func mapError(err error) (int, string, string) {
	var uerr *usecase.Error
	if !errors.As(err, &uerr) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal), "unexpected_error"
	}
	switch uerr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, string(uerr.Code), uerr.Reason
	case usecase.ErrorNotFound:
		return http.StatusNotFound, string(uerr.Code), uerr.Reason
	case usecase.ErrorServiceUnavailable:
		return http.StatusServiceUnavailable, string(uerr.Code), uerr.Reason
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, string(uerr.Code), uerr.Reason
	default:
		return http.StatusInternalServerError, string(usecase.ErrorInternal), uerr.Reason
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func writeJSON(status int, v any, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return errorJSON(http.StatusInternalServerError, string(usecase.ErrorInternal), "encode_error", correlationID)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

func errorJSON(status int, code, reason, correlationID string) events.APIGatewayProxyResponse {
	return writeJSON(status, errorResponse{Error: code, Reason: reason, CorrelationID: correlationID}, correlationID)
}
