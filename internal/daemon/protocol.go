package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/apps78/cotune-bridge/internal/router"
)

// Built-in commands answered by the daemon itself
const (
	CmdPing     = "ping"
	CmdShutdown = "shutdown"

	PongPayload     = "pong"
	ShutdownPayload = "shutting down"
)

// KindEncodeError is reported when a result payload cannot be encoded
const KindEncodeError router.Kind = "ENCODE_ERROR"

// Request is one newline-terminated JSON line sent by a front end
type Request struct {
	ID      string      `json:"id,omitempty"`
	Command string      `json:"command"`
	Args    router.Args `json:"args,omitempty"`
}

// ErrorBody describes a failed command
type ErrorBody struct {
	Kind    router.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Response is written back for every Request, echoing its id
type Response struct {
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

func newResponse(id string, res router.Result) Response {
	if !res.OK {
		return Response{ID: id, Error: &ErrorBody{Kind: res.Kind, Message: res.Message}}
	}

	resp := Response{ID: id, OK: true}
	if res.Payload == nil {
		return resp
	}
	b, err := json.Marshal(res.Payload)
	if err != nil {
		return Response{ID: id, Error: &ErrorBody{Kind: KindEncodeError, Message: err.Error()}}
	}
	resp.Payload = b
	return resp
}

// Result converts the response back into a router.Result whose payload is the raw JSON
func (r *Response) Result() router.Result {
	if !r.OK {
		if r.Error == nil {
			return router.Failure(router.KindUnavailable, "daemon returned a failure without details")
		}
		return router.Failure(r.Error.Kind, "%s", r.Error.Message)
	}
	if len(r.Payload) == 0 {
		return router.Success(nil)
	}
	return router.Success(r.Payload)
}

// Decode unmarshals the payload of a successful response into v
func (r *Response) Decode(v interface{}) error {
	if err := r.Result().Err(); err != nil {
		return err
	}
	if len(r.Payload) == 0 {
		return fmt.Errorf("response %s has no payload", r.ID)
	}
	return json.Unmarshal(r.Payload, v)
}
