// Package chat runs one conversational turn and streams its progress.
package chat

import (
	"context"
	"errors"
	"strings"

	"scheduler_server/core/agent"
	"scheduler_server/core/agent/entity"
	"scheduler_server/core/domain"
	"scheduler_server/pkg/apperr"

	"github.com/rs/zerolog"
)

// HistoryEntry is one prior message supplied by the client. Older clients
// send Type ("human"/"ai") instead of Role.
type HistoryEntry struct {
	Role    string `json:"role,omitempty"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content"`
}

type Request struct {
	Input   string         `json:"input"`
	History []HistoryEntry `json:"history"`
}

// Sink receives the turn as it progresses. *stream.Writer implements it.
type Sink interface {
	Step(step agent.Step) error
	Error(err error) error
	Done() error
}

type Runner interface {
	Run(ctx context.Context, identity domain.Identity, conv entity.Conversation, observe agent.Observer) (*agent.Result, error)
}

type PromptBuilder interface {
	Build(identity domain.Identity) string
}

type Service struct {
	loop   Runner
	prompt PromptBuilder
	log    zerolog.Logger
}

func NewService(loop Runner, prompt PromptBuilder, log zerolog.Logger) *Service {
	return &Service{
		loop:   loop,
		prompt: prompt,
		log:    log.With().Str("component", "chat").Logger(),
	}
}

// Validate rejects requests that cannot start a turn. Callers run it before
// committing to a streamed response.
func (s *Service) Validate(req Request) error {
	if strings.TrimSpace(req.Input) == "" {
		return apperr.ValidationFailed("input is required")
	}
	return nil
}

// Stream runs the turn for identity and writes it to sink. The sink always
// receives Done unless the request was invalid.
func (s *Service) Stream(ctx context.Context, identity domain.Identity, req Request, sink Sink) error {
	if err := s.Validate(req); err != nil {
		return err
	}

	conv := s.conversation(identity, req)
	res, runErr := s.loop.Run(ctx, identity, conv, sink.Step)

	var writeErr error
	if runErr != nil {
		switch {
		case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
			s.log.Info().Str("user_id", identity.ID).Msg("turn cancelled")
		case errors.Is(runErr, agent.ErrObserverFailed):
			// sink is already broken
			s.log.Info().Err(runErr).Str("user_id", identity.ID).Msg("client went away")
			writeErr = runErr
		default:
			s.log.Warn().Err(runErr).Str("user_id", identity.ID).Msg("turn failed")
			writeErr = sink.Error(runErr)
		}
	} else {
		s.log.Debug().Str("user_id", identity.ID).Int("steps", res.Steps).Msg("turn completed")
	}

	if err := sink.Done(); err != nil && writeErr == nil {
		writeErr = err
	}
	return writeErr
}

func (s *Service) conversation(identity domain.Identity, req Request) entity.Conversation {
	conv := entity.Conversation{entity.SystemMessage(s.prompt.Build(identity))}
	for _, h := range req.History {
		if h.Content == "" {
			continue
		}
		switch historyRole(h) {
		case entity.RoleUser:
			conv = append(conv, entity.UserMessage(h.Content))
		case entity.RoleAssistant:
			conv = append(conv, entity.AssistantMessage(h.Content))
		}
	}
	return append(conv, entity.UserMessage(req.Input))
}

func historyRole(h HistoryEntry) entity.Role {
	key := h.Role
	if key == "" {
		key = h.Type
	}
	switch strings.ToLower(key) {
	case "user", "human":
		return entity.RoleUser
	case "assistant", "ai":
		return entity.RoleAssistant
	}
	return ""
}
