package gateway

import (
	"context"
	"time"

	"github.com/soyeahso/deskd/internal/domain"
	"github.com/soyeahso/deskd/internal/stream"
)

// chatMessage is the payload of a chat.message event pushed to clients.
type chatMessage struct {
	EventID        string    `json:"eventId"`
	TicketID       string    `json:"ticketId"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RunChatPush consumes the chat outbound topic and pushes each reply to
// the connected clients holding the matching identity. It blocks until
// the context is cancelled. Undeliverable replies are dropped with a
// log: the reply is already in the ticket history, and a client that
// reconnects can read it from the ticket snapshot.
func (s *Server) RunChatPush(ctx context.Context) error {
	if len(s.brokers) == 0 {
		s.log.Debug().Msg("chat push disabled: no brokers configured")
		return nil
	}

	log := s.log.Sub("chatpush")
	consumer := stream.NewConsumer(stream.ConsumerConfig{
		Brokers: s.brokers,
		GroupID: stream.GroupChatPush,
		Topic:   s.topics.Outbound(domain.ChannelChat),
	}, log)
	defer consumer.Close()

	log.Info().Str("topic", s.topics.Outbound(domain.ChannelChat)).Msg("chat delivery loop started")

	for {
		msg, err := consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("fetch failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		reply, err := stream.DecodeReply(msg)
		if err != nil {
			log.Error().Err(err).Str("topic", msg.Topic).Msg("undecodable reply")
		} else {
			s.deliverReply(reply)
		}

		if err := consumer.Commit(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("offset commit failed")
		}
	}
}

// deliverReply pushes one reply to every connection under the sender's
// identity and reports how many received it.
func (s *Server) deliverReply(reply domain.OutboundReply) int {
	targets := s.clients.FindByIdentity(reply.SenderIdentifier)
	if len(targets) == 0 {
		s.log.Debug().
			Str("eventId", reply.EventID).
			Str("identity", reply.SenderIdentifier).
			Msg("chat reply undeliverable: no connected client")
		return 0
	}

	payload := chatMessage{
		EventID:        reply.EventID,
		TicketID:       reply.TicketID,
		ConversationID: reply.ConversationID,
		Content:        reply.Content,
		CreatedAt:      reply.CreatedAt,
	}

	delivered := 0
	for _, c := range targets {
		seq := s.eventSeq.Add(1)
		if err := c.SendEvent("chat.message", payload, seq); err != nil {
			s.log.Warn().Err(err).Str("connId", c.ConnID).Msg("chat push failed")
			continue
		}
		delivered++
	}
	return delivered
}
