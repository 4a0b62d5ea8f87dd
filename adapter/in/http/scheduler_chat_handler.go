package http

import (
	"bufio"
	"context"

	"scheduler_server/core/agent"
	"scheduler_server/core/agent/stream"
	"scheduler_server/core/domain"
	"scheduler_server/core/service/chat"
	"scheduler_server/pkg/apperr"
	"scheduler_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// ChatStreamer runs one turn. *chat.Service implements it.
type ChatStreamer interface {
	Validate(req chat.Request) error
	Stream(ctx context.Context, identity domain.Identity, req chat.Request, sink chat.Sink) error
}

// ChatHandler streams an agent turn as server-sent events.
type ChatHandler struct {
	chat ChatStreamer
	log  zerolog.Logger
}

func NewChatHandler(svc ChatStreamer, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chat: svc,
		log:  log.With().Str("handler", "chat").Logger(),
	}
}

func (h *ChatHandler) Register(router fiber.Router, limiter ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, limiter...), h.Stream)
	router.Post("/chat/stream", handlers...)
}

// Stream validates the request and then commits to an SSE response. Errors
// after that point are delivered as error events, never as a status code.
func (h *ChatHandler) Stream(c *fiber.Ctx) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return err
	}

	var req chat.Request
	if err := c.BodyParser(&req); err != nil {
		return apperr.ValidationFailed("invalid request body")
	}
	if err := h.chat.Validate(req); err != nil {
		return err
	}

	requestID, _ := c.Locals("request_id").(string)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")

	h.log.Info().
		Str("user_id", identity.ID).
		Str("request_id", requestID).
		Int("history", len(req.History)).
		Msg("chat turn started")

	// The stream writer runs after the handler returns, so the turn gets its
	// own context instead of the request's.
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ctx = logger.ContextWithRequestID(ctx, requestID)
		ctx = logger.ContextWithUserID(ctx, identity.ID)

		sink := &cancellingSink{Writer: stream.NewWriter(w), cancel: cancel}
		if err := h.chat.Stream(ctx, identity, req, sink); err != nil {
			h.log.Debug().Err(err).Str("request_id", requestID).Msg("client disconnected during turn")
			return
		}
		h.log.Info().Str("user_id", identity.ID).Str("request_id", requestID).Msg("chat turn finished")
	})
	return nil
}

// cancellingSink cancels the turn as soon as a write to the client fails.
type cancellingSink struct {
	*stream.Writer
	cancel context.CancelFunc
}

func (s *cancellingSink) Step(step agent.Step) error {
	if err := s.Writer.Step(step); err != nil {
		s.cancel()
		return err
	}
	return nil
}

func (s *cancellingSink) Error(cause error) error {
	if err := s.Writer.Error(cause); err != nil {
		s.cancel()
		return err
	}
	return nil
}
