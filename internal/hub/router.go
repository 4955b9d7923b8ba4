package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/dto"
	"collaborative-board/internal/metrics"
	"collaborative-board/internal/service"
)

const (
	tracerName   = "collaborative-board/hub"
	eventTimeout = 10 * time.Second
)

// errDropped 表示事件被静默丢弃，不回复 error
var errDropped = errors.New("event dropped")

// outbound 是处理器产生的出站消息
type outbound struct {
	event   string
	payload interface{}
}

type handlerFunc func(ctx context.Context, s *Session, boardID string, data json.RawMessage) (*outbound, error)

// route 是分发表中的一项。扇出规则作为元数据写在表里，而不是散落在各个处理器中。
type route struct {
	handle handlerFunc
	// requiresRoom 要求负载中的 boardId 与会话当前画板一致
	requiresRoom bool
	// dropOutsideRoom 不在房间时静默丢弃，而不是回复 not_in_room
	dropOutsideRoom bool
	// requiresAccess 在处理前重新检查 CanAccess，权限被撤销后立即生效
	requiresAccess bool
	// fanout 为 false 时出站消息只回复给发送者
	fanout        bool
	excludeSender bool
}

// Router 校验入站事件、按分发表处理并扇出结果。
type Router struct {
	hub    *Hub
	ai     AIResponder
	tracer trace.Tracer
	routes map[string]route
}

// NewRouter 创建 Router 实例
func NewRouter(h *Hub, ai AIResponder) *Router {
	r := &Router{hub: h, ai: ai, tracer: otel.Tracer(tracerName)}
	r.routes = map[string]route{
		dto.EventJoinBoard:     {handle: r.handleJoin},
		dto.EventLeaveBoard:    {handle: r.handleLeave},
		dto.EventDrawingAction: {handle: r.handleDrawing, requiresRoom: true, requiresAccess: true, fanout: true, excludeSender: true},
		dto.EventCursorUpdate:  {handle: r.handleCursor, requiresRoom: true, dropOutsideRoom: true, fanout: true, excludeSender: true},
		dto.EventChatMessage:   {handle: r.handleChat, requiresRoom: true, requiresAccess: true, fanout: true, excludeSender: false},
		dto.EventAIRequest:     {handle: r.handleAI, requiresRoom: true, requiresAccess: true},
	}
	return r
}

// ExcludesSender 返回事件扇出时是否排除发送者
func (r *Router) ExcludesSender(event string) bool {
	return r.routes[event].excludeSender
}

// Dispatch 处理一条原始入站消息。在会话的读 goroutine 中同步调用。
func (r *Router) Dispatch(s *Session, raw []byte) {
	env, err := dto.Decode(raw)
	if err != nil {
		r.hub.metrics.Event("invalid", metrics.StatusRejected)
		r.replyError(s, "", fmt.Errorf("%w: %v", service.ErrMalformedEvent, err))
		return
	}
	rt, ok := r.routes[env.Event]
	if !ok {
		r.hub.metrics.Event("unknown", metrics.StatusRejected)
		r.replyError(s, env.Event, fmt.Errorf("%w: unknown event %q", service.ErrMalformedEvent, env.Event))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, eventTimeout)
	defer cancel()
	ctx, span := r.tracer.Start(ctx, "board."+env.Event,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("board.session_id", s.id),
			attribute.Int64("board.user_id", int64(s.user.ID)),
		),
	)
	defer span.End()

	err = r.dispatch(ctx, s, env, rt, span)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
		r.hub.metrics.Event(env.Event, metrics.StatusOK)
	case errors.Is(err, errDropped):
		span.SetStatus(codes.Ok, "dropped")
		r.hub.metrics.Event(env.Event, metrics.StatusRejected)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		status := metrics.StatusRejected
		if code := service.ErrorCode(err); code == service.CodeUpstreamUnavailable || code == service.CodeInternal {
			status = metrics.StatusError
		}
		r.hub.metrics.Event(env.Event, status)
		r.replyError(s, env.Event, err)
	}
}

func (r *Router) dispatch(ctx context.Context, s *Session, env *dto.Envelope, rt route, span trace.Span) error {
	var boardID string
	if rt.requiresRoom {
		var ref struct {
			BoardID string `json:"boardId"`
		}
		if err := json.Unmarshal(env.Data, &ref); err != nil {
			return fmt.Errorf("%w: %v", service.ErrMalformedEvent, err)
		}
		boardID = strings.TrimSpace(ref.BoardID)
		if boardID == "" {
			return fmt.Errorf("%w: %v", service.ErrMalformedEvent, dto.ErrMissingBoardID)
		}
		span.SetAttributes(attribute.String("board.id", boardID))
		if s.BoardID() != boardID {
			if rt.dropOutsideRoom {
				return errDropped
			}
			return service.ErrNotInRoom
		}
	}
	if rt.requiresAccess {
		ok, err := r.hub.access.CanAccess(ctx, s.user.ID, boardID)
		if err != nil {
			return err
		}
		if !ok {
			return service.ErrAccessDenied
		}
	}

	out, err := rt.handle(ctx, s, boardID, env.Data)
	if err != nil || out == nil {
		return err
	}
	if rt.fanout {
		r.hub.fanout(boardID, out.event, out.payload, s, rt.excludeSender)
		return nil
	}
	msg, err := dto.Encode(out.event, out.payload)
	if err != nil {
		return err
	}
	s.reply(msg)
	return nil
}

func (r *Router) replyError(s *Session, event string, err error) {
	payload := dto.ErrorPayload{
		Message: service.PublicMessage(err),
		Code:    service.ErrorCode(err),
		Event:   event,
	}
	msg, encErr := dto.Encode(dto.EventError, payload)
	if encErr != nil {
		return
	}
	s.logger().WithError(err).WithField("event", event).Debug("Event rejected")
	s.reply(msg)
}

func (r *Router) handleJoin(ctx context.Context, s *Session, _ string, data json.RawMessage) (*outbound, error) {
	boardID, err := dto.ParseBoardRef(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrMalformedEvent, err)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("board.id", boardID))
	// board-joined 由 Join 直接投递，保证它先于该画板的其他消息到达
	if _, err := r.hub.Join(ctx, s, boardID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *Router) handleLeave(ctx context.Context, s *Session, _ string, data json.RawMessage) (*outbound, error) {
	boardID, err := dto.ParseBoardRef(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrMalformedEvent, err)
	}
	return nil, r.hub.Leave(ctx, s, boardID)
}

func (r *Router) handleDrawing(ctx context.Context, s *Session, boardID string, data json.RawMessage) (*outbound, error) {
	var req dto.DrawingActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrMalformedEvent, err)
	}
	payload, err := domain.ParseActionPayload(req.Action.Type, req.Action.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrMalformedEvent, err)
	}
	action := &domain.Action{
		BoardID:  boardID,
		UserID:   s.user.ID,
		Username: s.user.Username,
	}
	if err := action.SetPayload(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrMalformedEvent, err)
	}
	seq, err := r.hub.history.Append(ctx, action)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("board.seq", int64(seq)))
	return &outbound{event: dto.EventDrawingAction, payload: dto.NewActionView(*action)}, nil
}

func (r *Router) handleCursor(ctx context.Context, s *Session, boardID string, data json.RawMessage) (*outbound, error) {
	var req dto.CursorUpdateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrMalformedEvent, err)
	}
	if req.Cursor == nil || math.IsNaN(req.Cursor.X) || math.IsNaN(req.Cursor.Y) ||
		math.IsInf(req.Cursor.X, 0) || math.IsInf(req.Cursor.Y, 0) {
		return nil, fmt.Errorf("%w: cursor {x,y} is required", service.ErrMalformedEvent)
	}
	s.setCursor(*req.Cursor)
	// 光标是临时状态，写入失败不影响广播
	if err := r.hub.presence.Put(ctx, boardID, s.presenceEntry()); err != nil {
		logrus.WithFields(logrus.Fields{"board_id": boardID, "session_id": s.id}).WithError(err).Warn("Failed to update cursor presence")
	}
	return &outbound{event: dto.EventUserCursorUpdate, payload: dto.UserCursorUpdate{
		UserID:   s.user.ID,
		Username: s.user.Username,
		Color:    s.color,
		Cursor:   *req.Cursor,
	}}, nil
}

func (r *Router) handleChat(_ context.Context, s *Session, boardID string, data json.RawMessage) (*outbound, error) {
	var req dto.ChatMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrMalformedEvent, err)
	}
	text := strings.TrimSpace(req.Message)
	if text == "" || utf8.RuneCountInString(text) > domain.MaxTextLength {
		return nil, fmt.Errorf("%w: message must be 1..%d characters", service.ErrMalformedEvent, domain.MaxTextLength)
	}
	return &outbound{event: dto.EventChatMessage, payload: domain.ChatMessage{
		ID:        uuid.NewString(),
		BoardID:   boardID,
		UserID:    s.user.ID,
		Username:  s.user.Username,
		Message:   text,
		Timestamp: time.Now().UnixMilli(),
	}}, nil
}

func (r *Router) handleAI(_ context.Context, _ *Session, boardID string, data json.RawMessage) (*outbound, error) {
	if r.ai == nil {
		return nil, fmt.Errorf("%w: ai assistance is not enabled", service.ErrMalformedEvent)
	}
	var req dto.AIRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrMalformedEvent, err)
	}
	req.BoardID = boardID
	return &outbound{event: dto.EventAIResponse, payload: r.ai.Process(req)}, nil
}
