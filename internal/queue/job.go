package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
)

// State is the lifecycle position of a job.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// ErrInvalidTransition is returned for a state change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid job state transition")

var transitions = map[State][]State{
	StateWaiting: {StateActive},
	StateActive:  {StateCompleted, StateFailed, StateWaiting},
	StateFailed:  {StateWaiting},
}

// ValidateTransition reports whether a job may move from one state to another.
// Completed is terminal; a failed job only leaves that state when retried.
func ValidateTransition(from, to State) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Terminal reports whether no further processing will happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job types carried in Job.Type.
const (
	TypeCrawl      = "crawl"
	TypeSanctions  = "sanctions"
	TypeEnrichment = "enrichment"
)

// Job is the stored record of one unit of queued work.
type Job struct {
	ID          string    `mapstructure:"id" json:"id"`
	Queue       Name      `mapstructure:"queue" json:"queue"`
	Type        string    `mapstructure:"type" json:"type"`
	SourceID    string    `mapstructure:"source_id" json:"source_id,omitempty"`
	Priority    Priority  `mapstructure:"priority" json:"priority"`
	Payload     string    `mapstructure:"payload" json:"payload,omitempty"`
	State       State     `mapstructure:"state" json:"state"`
	Attempts    int       `mapstructure:"attempts" json:"attempts"`
	MaxAttempts int       `mapstructure:"max_attempts" json:"max_attempts"`
	Progress    float64   `mapstructure:"progress" json:"progress"`
	LastError   string    `mapstructure:"last_error" json:"last_error,omitempty"`
	Result      string    `mapstructure:"result" json:"result,omitempty"`
	Repeat      string    `mapstructure:"repeat" json:"repeat,omitempty"`
	CreatedAt   time.Time `mapstructure:"created_at" json:"created_at"`
	ProcessedAt time.Time `mapstructure:"processed_at" json:"processed_at,omitzero"`
	FinishedAt  time.Time `mapstructure:"finished_at" json:"finished_at,omitzero"`

	stream    string
	messageID string
}

// DecodePayload unmarshals the JSON payload into v.
func (j *Job) DecodePayload(v any) error {
	if j.Payload == "" {
		return errors.New("job has no payload")
	}
	if err := json.Unmarshal([]byte(j.Payload), v); err != nil {
		return fmt.Errorf("decode payload of job %s: %w", j.ID, err)
	}
	return nil
}

func (j *Job) fields() map[string]any {
	return map[string]any{
		"id":           j.ID,
		"queue":        string(j.Queue),
		"type":         j.Type,
		"source_id":    j.SourceID,
		"priority":     int(j.Priority),
		"payload":      j.Payload,
		"state":        string(j.State),
		"attempts":     j.Attempts,
		"max_attempts": j.MaxAttempts,
		"progress":     j.Progress,
		"last_error":   j.LastError,
		"result":       j.Result,
		"repeat":       j.Repeat,
		"created_at":   unixMillis(j.CreatedAt),
		"processed_at": unixMillis(j.ProcessedAt),
		"finished_at":  unixMillis(j.FinishedAt),
	}
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

var timeType = reflect.TypeOf(time.Time{})

// millisToTime turns the stored unix-millisecond strings back into times.
func millisToTime(from, to reflect.Type, data any) (any, error) {
	if to != timeType || from.Kind() != reflect.String {
		return data, nil
	}
	s, _ := data.(string)
	if s == "" || s == "0" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// decodeJob builds a Job from an HGETALL reply.
func decodeJob(hash map[string]string) (*Job, error) {
	var job Job
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(millisToTime),
		WeaklyTypedInput: true,
		Result:           &job,
	})
	if err != nil {
		return nil, fmt.Errorf("create job decoder: %w", err)
	}
	if decodeErr := dec.Decode(hash); decodeErr != nil {
		return nil, fmt.Errorf("decode job: %w", decodeErr)
	}
	return &job, nil
}
