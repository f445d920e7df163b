// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kvale/tern/internal/model"
	"github.com/kvale/tern/internal/provider"
)

// =============================================================================
// SESSION STATE
// =============================================================================

// SessionState describes where a generation session is in its lifecycle.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionActive
	SessionCompleted
	SessionErrored
	SessionCancelled
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionActive:
		return "active"
	case SessionCompleted:
		return "completed"
	case SessionErrored:
		return "errored"
	case SessionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// session tracks one in-flight generation. There is at most one; a new
// session cannot start while another is active. Each session carries a
// unique id so that events from an abandoned stream can be recognized
// and dropped.
type session struct {
	id             string
	conversationID string
	messageID      string
	cancel         context.CancelFunc
	state          SessionState
	startedAt      time.Time
	sentFirst      bool
}

func newSession(conversationID, messageID string, cancel context.CancelFunc) *session {
	return &session{
		id:             uuid.New().String(),
		conversationID: conversationID,
		messageID:      messageID,
		cancel:         cancel,
		state:          SessionActive,
		startedAt:      time.Now(),
	}
}

// =============================================================================
// SEND MESSAGE
// =============================================================================

// SendMessage appends the user's message to the active conversation and
// starts a streaming generation for the assistant reply. Exactly one
// generation may run at a time; a second send while one is active is
// rejected with ErrGenerationActive.
//
// The reply streams into the token buffer, not the conversation: an empty
// assistant placeholder is appended up front and its content is committed
// when the stream terminates, so the message count stays stable for the
// whole stream. Readers that only watch Conversations() see an empty
// placeholder until then; render the live text from StreamingText().
func (s *Store) SendMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()

	if s.session != nil && s.session.state == SessionActive {
		active := s.session.id
		s.mu.Unlock()
		s.logger.Printf("warning: send rejected, generation %s still active", active)
		return ErrGenerationActive
	}

	conv := s.activeConversationLocked()
	if conv == nil {
		s.mu.Unlock()
		return ErrNoActiveConversation
	}

	s.lastErr = ""
	conv.AddMessage(model.NewUserMessage(content))

	placeholder := model.NewAssistantPlaceholder(conv.Model)
	conv.AddMessage(placeholder)

	streamCtx, cancel := context.WithCancel(ctx)
	sess := newSession(conv.ID, placeholder.ID, cancel)
	s.session = sess

	s.buffer.StartStream(placeholder.ID)

	req := s.buildRequestLocked(conv)
	s.scheduleSaveLocked()

	s.mu.Unlock()

	s.emit(GenerationStartedMsg{
		SessionID:      sess.id,
		ConversationID: conv.ID,
		MessageID:      placeholder.ID,
		StartTime:      sess.startedAt,
	})

	go s.provider.StreamChat(streamCtx, req, provider.Handler{
		OnChunk: func(token string) { s.handleChunk(sess.id, token) },
		OnDone:  func(usage *provider.Usage) { s.handleDone(sess.id, usage) },
		OnError: func(err error) { s.handleError(sess.id, err) },
	})

	return nil
}

// buildRequestLocked assembles the provider request from the conversation
// history and its effective settings. Caller must hold s.mu.
func (s *Store) buildRequestLocked(conv *model.Conversation) provider.Request {
	history := conv.History()
	messages := make([]provider.ChatMessage, 0, len(history)+1)

	if prompt := strings.TrimSpace(conv.Settings.SystemPrompt); prompt != "" {
		messages = append(messages, provider.NewSystemMessage(prompt))
	}
	for _, msg := range history {
		messages = append(messages, provider.ChatMessage{
			Role:    msg.Role.String(),
			Content: msg.Content,
		})
	}

	return provider.Request{
		Model:            conv.Model,
		Messages:         messages,
		Temperature:      conv.Settings.Temperature,
		MaxTokens:        conv.Settings.MaxTokens,
		TopP:             conv.Settings.TopP,
		FrequencyPenalty: conv.Settings.FrequencyPenalty,
		PresencePenalty:  conv.Settings.PresencePenalty,
	}
}

// =============================================================================
// STOP
// =============================================================================

// StopGeneration cancels the in-flight generation, if any. It is
// synchronous from the caller's perspective: on return the session no
// longer accepts tokens. Partial content already streamed is kept.
// Calling with no active generation is a no-op.
func (s *Store) StopGeneration() {
	s.mu.Lock()

	sess := s.session
	if sess == nil || sess.state != SessionActive {
		s.mu.Unlock()
		return
	}

	sess.state = SessionCancelled
	sess.cancel()

	s.finalizeLocked(sess, nil)
	s.mu.Unlock()

	s.saveNow()
	s.emit(GenerationCancelledMsg{SessionID: sess.id, MessageID: sess.messageID})
}

// =============================================================================
// STREAM HANDLERS
// =============================================================================

// handleChunk delivers one token from the stream. Tokens from a stale
// session (stopped, or superseded) are dropped.
func (s *Store) handleChunk(sessionID, token string) {
	s.mu.Lock()

	sess := s.session
	if sess == nil || sess.id != sessionID || sess.state != SessionActive {
		s.mu.Unlock()
		return
	}

	isFirst := !sess.sentFirst
	sess.sentFirst = true
	s.buffer.AppendToken(token)
	messageID := sess.messageID

	s.mu.Unlock()

	s.emit(StreamTokenMsg{
		SessionID: sessionID,
		MessageID: messageID,
		Token:     token,
		IsFirst:   isFirst,
	})
}

// handleDone finalizes a successful stream: the buffered text is committed
// to the placeholder message with its token count, and the conversation is
// persisted immediately.
func (s *Store) handleDone(sessionID string, usage *provider.Usage) {
	s.mu.Lock()

	sess := s.session
	if sess == nil || sess.id != sessionID || sess.state != SessionActive {
		s.mu.Unlock()
		return
	}

	sess.state = SessionCompleted
	s.finalizeLocked(sess, usage)
	messageID := sess.messageID

	s.mu.Unlock()

	s.saveNow()
	s.emit(GenerationDoneMsg{SessionID: sessionID, MessageID: messageID, Usage: usage})
}

// handleError finalizes a failed stream. The partial content streamed so
// far is kept on the message, which is flagged as errored; the store-level
// error is the humanized form for display. Cancellation arriving through
// the error path is not an error.
func (s *Store) handleError(sessionID string, err error) {
	s.mu.Lock()

	sess := s.session
	if sess == nil || sess.id != sessionID || sess.state != SessionActive {
		s.mu.Unlock()
		return
	}

	if provider.IsCancellation(err) {
		sess.state = SessionCancelled
		s.finalizeLocked(sess, nil)
		messageID := sess.messageID
		s.mu.Unlock()

		s.saveNow()
		s.emit(GenerationCancelledMsg{SessionID: sessionID, MessageID: messageID})
		return
	}

	sess.state = SessionErrored
	human := provider.Humanize(err)
	s.lastErr = human

	if conv := s.conversationByIDLocked(sess.conversationID); conv != nil {
		if msg := conv.MessageByID(sess.messageID); msg != nil {
			msg.Error = true
		}
	}

	s.finalizeLocked(sess, nil)
	messageID := sess.messageID
	s.mu.Unlock()

	s.saveNow()
	s.emit(GenerationErrorMsg{
		SessionID: sessionID,
		MessageID: messageID,
		Err:       err,
		Human:     human,
	})
}

// finalizeLocked commits the buffered stream text to the placeholder
// message and releases the session slot. Caller must hold s.mu and must
// have already set the session's terminal state.
func (s *Store) finalizeLocked(sess *session, usage *provider.Usage) {
	s.buffer.EndStream()
	text := s.buffer.Text()

	if conv := s.conversationByIDLocked(sess.conversationID); conv != nil {
		if msg := conv.MessageByID(sess.messageID); msg != nil {
			msg.Content = text
			if usage != nil && usage.CompletionTokens > 0 {
				msg.TokenCount = usage.CompletionTokens
			} else {
				msg.TokenCount = msg.EstimateTokens()
			}
		}
		if usage != nil {
			conv.Metadata.TotalTokens += usage.TotalTokens
		}
		conv.Touch()
		s.markDirtyLocked(conv.ID)
	}

	sess.cancel()
	s.session = nil
}

// =============================================================================
// SESSION INTROSPECTION
// =============================================================================

// IsGenerating reports whether a generation session is active.
func (s *Store) IsGenerating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil && s.session.state == SessionActive
}

// SessionInfo describes the active session for display purposes.
type SessionInfo struct {
	ID             string
	ConversationID string
	MessageID      string
	State          SessionState
	StartedAt      time.Time
}

// ActiveSession returns details of the in-flight session, or ok=false when
// the store is idle.
func (s *Store) ActiveSession() (SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return SessionInfo{}, false
	}
	return SessionInfo{
		ID:             s.session.id,
		ConversationID: s.session.conversationID,
		MessageID:      s.session.messageID,
		State:          s.session.state,
		StartedAt:      s.session.startedAt,
	}, true
}

// StreamingText returns the tokens accumulated for the in-flight message.
// Empty when no stream is active.
func (s *Store) StreamingText() string {
	if !s.buffer.Active() {
		return ""
	}
	return s.buffer.Text()
}
