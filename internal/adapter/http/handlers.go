package http

import (
	"net/http"

	"github.com/Strob0t/echobox/internal/domain/feedback"
	"github.com/Strob0t/echobox/internal/domain/reply"
	"github.com/Strob0t/echobox/internal/logger"
	"github.com/Strob0t/echobox/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// Handlers holds the HTTP handlers of the feedback API.
type Handlers struct {
	Feedback     *service.FeedbackService
	Replies      *service.ReplyService
	ChannelTests *service.ChannelTestService
	Stream       http.Handler // SSE session stream
	WS           http.Handler // WebSocket session stream, optional
}

// submitFeedbackRequest is the body the widget posts.
type submitFeedbackRequest struct {
	Feedback  feedback.Event   `json:"feedback"`
	Context   feedback.Context `json:"context"`
	SessionID string           `json:"session_id"`
}

// SubmitFeedback handles POST /api/v1/feedback. Channel failures are part of
// the returned summary; only an unreadable channel list is a server error.
func (h *Handlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	pk := projectKey(r)
	if !requireField(w, pk, HeaderAPIKey) {
		return
	}
	req, ok := readJSON[submitFeedbackRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	summary, err := h.Feedback.Submit(r.Context(), pk, feedback.Delivery{
		Feedback:  req.Feedback,
		Context:   req.Context,
		SessionID: req.SessionID,
	})
	if err != nil {
		writeDomainError(w, r, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type createReplyRequest struct {
	Text string `json:"text"`
}

// CreateReply handles POST /api/v1/sessions/{sessionId}/replies.
func (h *Handlers) CreateReply(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionId")
	pk := projectKey(r)
	if !requireField(w, pk, HeaderAPIKey) {
		return
	}
	req, ok := readJSON[createReplyRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	ctx := logger.WithSessionID(r.Context(), sessionID)
	rep, err := h.Replies.Create(ctx, reply.CreateRequest{
		ProjectKeyID: pk,
		SessionID:    sessionID,
		Text:         req.Text,
	})
	if err != nil {
		writeDomainError(w, r, err, "session not found")
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

// ListReplies handles GET /api/v1/sessions/{sessionId}/replies. The widget
// calls it after (re)connecting to backfill replies it missed.
func (h *Handlers) ListReplies(w http.ResponseWriter, r *http.Request) {
	replies, err := h.Replies.History(r.Context(), urlParam(r, "sessionId"))
	if err != nil {
		writeDomainError(w, r, err, "session not found")
		return
	}
	if replies == nil {
		replies = []reply.Reply{}
	}
	writeJSON(w, http.StatusOK, replies)
}

// TestChannel handles POST /api/v1/channels/{id}/test. A failed test call
// is reported with 200 and success=false in the body.
func (h *Handlers) TestChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	res, err := h.ChannelTests.Test(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err, "channel not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
