package dispatch

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashutoshpw/coolify/pkg/deployment"
)

// ErrParse is returned for control messages that cannot be decoded
var ErrParse = errors.New("malformed control message")

// ParseMessage decodes one control message: a control token or a JSON deployment request
func ParseMessage(data []byte) (Message, error) {
	text := strings.TrimSpace(string(data))

	switch {
	case text == CancelToken:
		return Message{Kind: KindCancel}, nil
	case text == FlushToken:
		return Message{Kind: KindFlush}, nil
	case strings.HasPrefix(text, StatusPrefix):
		return Message{Kind: KindStatus, Caller: strings.TrimPrefix(text, StatusPrefix)}, nil
	case text == "":
		return Message{}, fmt.Errorf("%w: empty message", ErrParse)
	}

	req, err := ParseRequest([]byte(text))
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindSubmit, Request: &req}, nil
}

// ParseRequest decodes and validates a JSON deployment request
func ParseRequest(data []byte) (deployment.Request, error) {
	var payload DeployPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&payload); err != nil {
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return deployment.Request{}, fmt.Errorf("%w: %v (payload: %q)", ErrParse, err, preview)
	}

	req := payload.ToRequest()
	if err := req.Validate(); err != nil {
		return deployment.Request{}, err
	}
	return req, nil
}

// DecodeParams accepts a request as raw JSON or, as job schedulers pass it, base64-encoded JSON
func DecodeParams(params string) (deployment.Request, error) {
	params = strings.TrimSpace(params)
	if params == "" {
		return deployment.Request{}, fmt.Errorf("%w: parameters are empty", ErrParse)
	}
	if strings.HasPrefix(params, "{") {
		return ParseRequest([]byte(params))
	}

	data, err := base64.StdEncoding.DecodeString(params)
	if err != nil {
		return deployment.Request{}, fmt.Errorf("%w: failed to decode base64 parameters: %v", ErrParse, err)
	}
	return ParseRequest(data)
}
