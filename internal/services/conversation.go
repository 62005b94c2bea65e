package services

import (
	"context"
	"time"

	"github.com/yungbote/casedesk-backend/internal/domain/conversation"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

// ConversationStore is satisfied by aggregates.ConversationRepository.
type ConversationStore interface {
	Load(ctx context.Context, id string) (*conversation.Conversation, error)
	Save(ctx context.Context, c *conversation.Conversation) error
	ListSLAWatch(ctx context.Context, before time.Time, limit int) ([]*conversation.Conversation, error)
}

type SLASweepResult struct {
	Checked  int `json:"checked"`
	Changed  int `json:"changed"`
	Violated int `json:"violated"`
	Failed   int `json:"failed"`
	// Escalations counts overdue tasks flagged by the same sweep.
	Escalations int `json:"escalations"`
}

type ConversationService interface {
	OpenConversation(ctx context.Context, in conversation.NewInput) (*conversation.Conversation, error)
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)
	SendMessage(ctx context.Context, id string, in conversation.MessageInput) (conversation.Message, error)
	AssignAgent(ctx context.Context, id, agentID string, opts conversation.AssignOptions) error
	UpdateStatus(ctx context.Context, id string, to conversation.Status) error
	CloseConversation(ctx context.Context, id, resolution string) error
	ReopenConversation(ctx context.Context, id, reason string) error
	SetSLADeadline(ctx context.Context, id string, deadline time.Time) error
	CheckSLA(ctx context.Context, id string) (conversation.SLAStatus, error)
	SweepSLA(ctx context.Context, limit int) (SLASweepResult, error)
}

type conversationService struct {
	log   *logger.Logger
	convs ConversationStore
	sla   conversation.SLAEvaluator
	opts  Options
}

func NewConversationService(baseLog *logger.Logger, convs ConversationStore, sla conversation.SLAEvaluator, opts Options) ConversationService {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	if sla.WarningWindow <= 0 {
		sla.WarningWindow = conversation.DefaultWarningWindow
	}
	return &conversationService{
		log:   baseLog.With("service", "ConversationService"),
		convs: convs,
		sla:   sla,
		opts:  opts.withDefaults(),
	}
}

func (s *conversationService) OpenConversation(ctx context.Context, in conversation.NewInput) (*conversation.Conversation, error) {
	c, err := conversation.New(in, s.opts.Now(), conversation.WithSLAEvaluator(s.sla))
	if err != nil {
		return nil, err
	}
	if err := s.convs.Save(ctx, c); err != nil {
		if IsDeliveryError(err) {
			return c, err
		}
		return nil, err
	}
	s.log.Info("Conversation opened", "conversation_id", c.ID(), "customer_id", c.CustomerID(), "channel", c.Channel())
	return c, nil
}

func (s *conversationService) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	return s.convs.Load(ctx, id)
}

func (s *conversationService) SendMessage(ctx context.Context, id string, in conversation.MessageInput) (conversation.Message, error) {
	var msg conversation.Message
	err := s.mutate(ctx, id, func(c *conversation.Conversation, now time.Time) (bool, error) {
		m, err := c.SendMessage(in, now)
		msg = m
		return err == nil, err
	})
	return msg, err
}

func (s *conversationService) AssignAgent(ctx context.Context, id, agentID string, opts conversation.AssignOptions) error {
	return s.mutate(ctx, id, func(c *conversation.Conversation, now time.Time) (bool, error) {
		return true, c.AssignAgent(agentID, opts, now)
	})
}

func (s *conversationService) UpdateStatus(ctx context.Context, id string, to conversation.Status) error {
	return s.mutate(ctx, id, func(c *conversation.Conversation, now time.Time) (bool, error) {
		if c.Status() == to {
			return false, nil
		}
		return true, c.UpdateStatus(to, now)
	})
}

func (s *conversationService) CloseConversation(ctx context.Context, id, resolution string) error {
	return s.mutate(ctx, id, func(c *conversation.Conversation, now time.Time) (bool, error) {
		return true, c.Close(resolution, now)
	})
}

func (s *conversationService) ReopenConversation(ctx context.Context, id, reason string) error {
	return s.mutate(ctx, id, func(c *conversation.Conversation, now time.Time) (bool, error) {
		return true, c.Reopen(reason, now)
	})
}

func (s *conversationService) SetSLADeadline(ctx context.Context, id string, deadline time.Time) error {
	return s.mutate(ctx, id, func(c *conversation.Conversation, now time.Time) (bool, error) {
		return true, c.SetSLADeadline(deadline, now)
	})
}

// CheckSLA re-evaluates the conversation's SLA and saves only when the status
// moved.
func (s *conversationService) CheckSLA(ctx context.Context, id string) (conversation.SLAStatus, error) {
	var status conversation.SLAStatus
	err := s.mutate(ctx, id, func(c *conversation.Conversation, now time.Time) (bool, error) {
		before := c.SLAStatus()
		status = c.CheckSLAStatus(now)
		return status != before, nil
	})
	return status, err
}

// SweepSLA checks every open conversation whose deadline is inside the
// warning window.
func (s *conversationService) SweepSLA(ctx context.Context, limit int) (SLASweepResult, error) {
	var res SLASweepResult
	now := s.opts.Now().UTC()
	watch, err := s.convs.ListSLAWatch(ctx, now.Add(s.sla.WarningWindow), limit)
	if err != nil {
		return res, err
	}
	for _, c := range watch {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		before := c.SLAStatus()
		status, err := s.CheckSLA(ctx, c.ID())
		if err != nil && !IsDeliveryError(err) {
			res.Failed++
			s.log.Warn("SLA check failed", "conversation_id", c.ID(), "error", err)
			continue
		}
		if status != before {
			res.Changed++
		}
		if status == conversation.SLAViolated && before != conversation.SLAViolated {
			res.Violated++
		}
	}
	return res, nil
}

// mutate loads, applies fn and saves, retrying on version conflicts. fn
// reports whether anything worth persisting changed.
func (s *conversationService) mutate(ctx context.Context, id string, fn func(c *conversation.Conversation, now time.Time) (bool, error)) error {
	return RetryOnConflict(ctx, s.opts.Retry.Attempts, s.opts.Retry.Backoff, func(ctx context.Context) error {
		c, err := s.convs.Load(ctx, id)
		if err != nil {
			return err
		}
		changed, err := fn(c, s.opts.Now())
		if err != nil {
			return err
		}
		if !changed && len(c.UncommittedEvents()) == 0 {
			return nil
		}
		return s.convs.Save(ctx, c)
	})
}
