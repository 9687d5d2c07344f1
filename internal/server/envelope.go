// Package server implements the 13-tool registry and the transports
// that expose it (spec.md §6): stdio (line-delimited JSON) by default,
// HTTP optionally, both producing the standard response envelope.
package server

import (
	"errors"
	"time"

	"github.com/ravelhq/ravel/internal/types"
)

// serverVersion is reported in every envelope's metadata.
const serverVersion = "0.1.0"

// Envelope is the standard response shape every tool call returns
// (spec.md §6).
type Envelope struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Data     any            `json:"data"`
	Error    *EnvelopeError `json:"error"`
	Metadata Metadata       `json:"metadata"`
}

// EnvelopeError is the envelope's error shape.
type EnvelopeError struct {
	Code           types.ErrorCode `json:"code"`
	Details        string          `json:"details,omitempty"`
	AdditionalData map[string]any  `json:"additionalData,omitempty"`
}

// Metadata is attached to every envelope, success or failure.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

func newMetadata() Metadata {
	return Metadata{Timestamp: time.Now().UTC(), Version: serverVersion}
}

// Ok builds a success envelope carrying data.
func Ok(message string, data any) Envelope {
	return Envelope{Success: true, Message: message, Data: data, Metadata: newMetadata()}
}

// Fail builds a failure envelope from err, unwrapping a *types.Error
// for its code/details/additionalData when possible and otherwise
// reporting INTERNAL_ERROR — the dispatch boundary's last-resort
// safety net, never a substitute for returning typed errors upstream.
func Fail(err error) Envelope {
	code := types.CodeOf(err)
	envErr := &EnvelopeError{Code: code, Details: err.Error()}
	var te *types.Error
	if errors.As(err, &te) {
		envErr.Details = te.Details
		envErr.AdditionalData = te.AdditionalData
	}
	return Envelope{Success: false, Message: err.Error(), Error: envErr, Metadata: newMetadata()}
}
