package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"travelog-backend/internal/queue"
)

// Dispatcher schedules enrichment work. Both calls return immediately.
type Dispatcher interface {
	TriggerBatchRun()
	TriggerSingleEntity(id string)
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrUnknownKind indicates a message kind no handler exists for.
type ErrUnknownKind struct {
	Meta      MessageMeta
	Kind      string
	RequestID string
}

func (e ErrUnknownKind) Error() string { return "unknown message kind: " + e.Kind }

// ErrMissingCityID indicates a city message without a city id.
type ErrMissingCityID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingCityID) Error() string { return "missing city id" }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	msg.Kind = strings.ToLower(strings.TrimSpace(msg.Kind))
	msg.CityID = strings.TrimSpace(msg.CityID)
	switch msg.Kind {
	case queue.KindBackfill:
	case queue.KindCity:
		if msg.CityID == "" {
			return msg, meta, ErrMissingCityID{Meta: meta, RequestID: msg.RequestID}
		}
	default:
		return msg, meta, ErrUnknownKind{Meta: meta, Kind: msg.Kind, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// Dispatch hands a parsed message to the dispatcher.
func Dispatch(ctx context.Context, d Dispatcher, msg queue.Message) error {
	if d == nil {
		return errors.New("enrichment dispatcher not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	switch msg.Kind {
	case queue.KindBackfill:
		d.TriggerBatchRun()
	case queue.KindCity:
		if msg.CityID == "" {
			return ErrMissingCityID{RequestID: msg.RequestID}
		}
		d.TriggerSingleEntity(msg.CityID)
	default:
		return ErrUnknownKind{Kind: msg.Kind, RequestID: msg.RequestID}
	}
	return nil
}

// HandleMessage parses, validates and dispatches a message payload.
func HandleMessage(ctx context.Context, d Dispatcher, body string) error {
	msg, _, err := ParseMessage(body)
	if err != nil {
		return err
	}
	return Dispatch(ctx, d, msg)
}
