package queue

import (
	"encoding/json"
	"time"
)

// Task names accepted by the worker.
const (
	TaskAnalyze      = "analyze"
	TaskPresentation = "presentation"
)

// Message is the payload sent to downstream queue consumers.
type Message struct {
	Task        string `json:"task"`
	ValuationID string `json:"valuationId"`
	Attempt     int    `json:"attempt"`
	RequestID   string `json:"requestId"`
	EnqueuedAt  string `json:"enqueuedAt"`
	Version     int    `json:"version"`

	// Delay postpones delivery; it is transport metadata, not part of the body.
	Delay time.Duration `json:"-"`
}

// NewAnalyzeMessage builds a Task 1 message for the given valuation.
func NewAnalyzeMessage(valuationID, requestID string) Message {
	return Message{
		Task:        TaskAnalyze,
		ValuationID: valuationID,
		RequestID:   requestID,
		EnqueuedAt:  time.Now().UTC().Format(time.RFC3339),
		Version:     1,
	}
}

// NewPresentationMessage builds a Task 2 message for the given valuation.
func NewPresentationMessage(valuationID, requestID string, attempt int) Message {
	return Message{
		Task:        TaskPresentation,
		ValuationID: valuationID,
		Attempt:     attempt,
		RequestID:   requestID,
		EnqueuedAt:  time.Now().UTC().Format(time.RFC3339),
		Version:     1,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
