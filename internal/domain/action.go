package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// ActionKind 表示绘图操作的类型。
type ActionKind string

const (
	ActionDraw  ActionKind = "draw"
	ActionErase ActionKind = "erase"
	ActionShape ActionKind = "shape"
	ActionText  ActionKind = "text"
	ActionImage ActionKind = "image"
)

const (
	// MaxTextLength 是文本操作与聊天消息允许的最大字符数。
	MaxTextLength = 2000
	// maxStrokePoints 限制单笔画的坐标数量 (x,y 成对出现)。
	maxStrokePoints = 20000
)

// ErrInvalidPayload 表示操作数据未通过校验。
var ErrInvalidPayload = errors.New("invalid action payload")

// Action 是画板历史日志中不可变的一条记录。
// Seq 由服务端分配，同一画板内严格递增。
type Action struct {
	ID        uint       `gorm:"primaryKey" json:"-"`
	BoardID   string     `gorm:"size:64;not null;uniqueIndex:idx_board_seq,priority:1" json:"boardId"`
	Seq       uint64     `gorm:"not null;uniqueIndex:idx_board_seq,priority:2" json:"seq"`
	Kind      ActionKind `gorm:"size:16;not null" json:"type"`
	Data      string     `gorm:"type:text;not null" json:"data"` // 规范化后的 JSON 负载
	UserID    uint       `gorm:"index;not null" json:"userId"`
	Username  string     `gorm:"size:191" json:"username"`
	CreatedAt time.Time  `gorm:"index;not null" json:"createdAt"`
}

// Payload 以 json.RawMessage 形式返回操作数据，便于嵌入到出站消息中。
func (a *Action) Payload() json.RawMessage {
	if a.Data == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(a.Data)
}

// ParsePayload 将 Data 字段解析为对应类型的结构体。
func (a *Action) ParsePayload() (ActionPayload, error) {
	return ParseActionPayload(a.Kind, json.RawMessage(a.Data))
}

// SetPayload 校验并序列化负载，同时设置 Kind。
func (a *Action) SetPayload(p ActionPayload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	bytes, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal action payload: %w", err)
	}
	a.Kind = p.Kind()
	a.Data = string(bytes)
	return nil
}

// ActionPayload 是五种绘图操作负载的公共接口。
type ActionPayload interface {
	Kind() ActionKind
	Validate() error
}

// StrokePayload 用于 draw 和 erase 操作，Points 为扁平的 [x0,y0,x1,y1,...]。
type StrokePayload struct {
	kind   ActionKind
	Points []float64 `json:"points"`
	Color  string    `json:"color,omitempty"`
	Width  float64   `json:"width,omitempty"`
}

// NewStrokePayload 构造 draw 或 erase 负载。
func NewStrokePayload(kind ActionKind, points []float64, color string, width float64) StrokePayload {
	return StrokePayload{kind: kind, Points: points, Color: color, Width: width}
}

func (p StrokePayload) Kind() ActionKind { return p.kind }

func (p StrokePayload) Validate() error {
	if len(p.Points) < 2 || len(p.Points)%2 != 0 {
		return fmt.Errorf("%w: %s requires an even number of coordinates (got %d)", ErrInvalidPayload, p.kind, len(p.Points))
	}
	if len(p.Points) > maxStrokePoints {
		return fmt.Errorf("%w: too many points (%d)", ErrInvalidPayload, len(p.Points))
	}
	for _, v := range p.Points {
		if !isFinite(v) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidPayload)
		}
	}
	if p.Width < 0 || !isFinite(p.Width) {
		return fmt.Errorf("%w: invalid width", ErrInvalidPayload)
	}
	return nil
}

// ShapeType 是 shape 操作支持的几何形状。
type ShapeType string

const (
	ShapeRect    ShapeType = "rect"
	ShapeEllipse ShapeType = "ellipse"
	ShapeLine    ShapeType = "line"
	ShapeArrow   ShapeType = "arrow"
)

// ShapePayload 描述一个形状。
type ShapePayload struct {
	Shape  ShapeType `json:"shape"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
	Color  string    `json:"color,omitempty"`
	Fill   string    `json:"fill,omitempty"`
}

func (ShapePayload) Kind() ActionKind { return ActionShape }

func (p ShapePayload) Validate() error {
	switch p.Shape {
	case ShapeRect, ShapeEllipse, ShapeLine, ShapeArrow:
	default:
		return fmt.Errorf("%w: unknown shape %q", ErrInvalidPayload, p.Shape)
	}
	for _, v := range []float64{p.X, p.Y, p.Width, p.Height} {
		if !isFinite(v) {
			return fmt.Errorf("%w: non-finite geometry", ErrInvalidPayload)
		}
	}
	return nil
}

// TextPayload 描述画布上的一段文本。
type TextPayload struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Text     string  `json:"text"`
	Color    string  `json:"color,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
}

func (TextPayload) Kind() ActionKind { return ActionText }

func (p TextPayload) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("%w: text is empty", ErrInvalidPayload)
	}
	if len([]rune(p.Text)) > MaxTextLength {
		return fmt.Errorf("%w: text longer than %d characters", ErrInvalidPayload, MaxTextLength)
	}
	if !isFinite(p.X) || !isFinite(p.Y) || p.FontSize < 0 || !isFinite(p.FontSize) {
		return fmt.Errorf("%w: invalid text geometry", ErrInvalidPayload)
	}
	return nil
}

// ImagePayload 引用一张外部图片。
type ImagePayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	URL    string  `json:"url"`
}

func (ImagePayload) Kind() ActionKind { return ActionImage }

func (p ImagePayload) Validate() error {
	u, err := url.Parse(p.URL)
	if err != nil || p.URL == "" {
		return fmt.Errorf("%w: invalid image url", ErrInvalidPayload)
	}
	switch u.Scheme {
	case "http", "https", "data":
	default:
		return fmt.Errorf("%w: unsupported image url scheme %q", ErrInvalidPayload, u.Scheme)
	}
	for _, v := range []float64{p.X, p.Y, p.Width, p.Height} {
		if !isFinite(v) {
			return fmt.Errorf("%w: non-finite geometry", ErrInvalidPayload)
		}
	}
	if p.Width < 0 || p.Height < 0 {
		return fmt.Errorf("%w: negative image size", ErrInvalidPayload)
	}
	return nil
}

// ParseActionPayload 按 kind 解析并校验原始负载，未知字段会被丢弃。
func ParseActionPayload(kind ActionKind, raw json.RawMessage) (ActionPayload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: %s requires data", ErrInvalidPayload, kind)
	}
	var (
		p   ActionPayload
		err error
	)
	switch kind {
	case ActionDraw, ActionErase:
		s := StrokePayload{kind: kind}
		err = json.Unmarshal(raw, &s)
		p = s
	case ActionShape:
		var s ShapePayload
		err = json.Unmarshal(raw, &s)
		p = s
	case ActionText:
		var s TextPayload
		err = json.Unmarshal(raw, &s)
		p = s
	case ActionImage:
		var s ImagePayload
		err = json.Unmarshal(raw, &s)
		p = s
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidPayload, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
