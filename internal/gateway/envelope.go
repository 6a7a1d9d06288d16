package gateway

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Envelope is the {succeeded, message, totalRecord, data} wrapper most
// endpoints respond with.
type Envelope[T any] struct {
	Succeeded   bool     `json:"succeeded"`
	Message     Messages `json:"message"`
	TotalRecord int      `json:"totalRecord"`
	Data        T        `json:"data"`
}

// DoEnvelope performs req and unwraps the envelope. succeeded:false becomes a
// validation APIError carrying the server message, or fallback when the
// server sent none.
func DoEnvelope[T any](ctx context.Context, c Caller, req Request, fallback string) (Envelope[T], error) {
	name := requestName(req)
	body, err := c.Call(ctx, req)
	if err != nil {
		return Envelope[T]{}, err
	}

	if !gjson.GetBytes(body, "succeeded").Exists() {
		return Envelope[T]{}, errors.Wrapf(ErrMalformedResponse, "%s: missing succeeded flag", name)
	}

	var env Envelope[T]
	if err := decode(name, body, &env); err != nil {
		return Envelope[T]{}, err
	}
	if !env.Succeeded {
		return env, rejected(name, env.Message, fallback)
	}
	return env, nil
}

// DoAction performs a call whose body carries nothing but the outcome. An
// empty body counts as success; succeeded:false is mapped like DoEnvelope.
func DoAction(ctx context.Context, c Caller, req Request, fallback string) error {
	name := requestName(req)
	body, err := c.Call(ctx, req)
	if err != nil {
		return err
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if !gjson.ValidBytes(body) {
		return errors.Wrapf(ErrMalformedResponse, "%s: invalid json", name)
	}
	succeeded := gjson.GetBytes(body, "succeeded")
	if succeeded.Exists() && !succeeded.Bool() {
		return rejected(name, messagesOf(gjson.GetBytes(body, "message")), fallback)
	}
	return nil
}

// Decode performs req and decodes the 2xx body as T.
func Decode[T any](ctx context.Context, c Caller, req Request) (T, error) {
	var out T
	body, err := c.Call(ctx, req)
	if err != nil {
		return out, err
	}
	err = decode(requestName(req), body, &out)
	return out, err
}

func decode(name string, body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.Wrapf(ErrMalformedResponse, "%s: empty body", name)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(ErrMalformedResponse, "%s: %v", name, err)
	}
	return nil
}

func rejected(name string, msgs []string, fallback string) *APIError {
	if len(msgs) == 0 {
		msgs = []string{fallback}
	}
	apiErr := NewValidationError(msgs, nil)
	apiErr.Endpoint = name
	return apiErr
}
