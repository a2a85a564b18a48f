package logger

import (
	"time"

	"go.uber.org/zap"
)

func String(key, val string) Field {
	return zap.String(key, val)
}

func Strings(key string, val []string) Field {
	return zap.Strings(key, val)
}

func Int(key string, val int) Field {
	return zap.Int(key, val)
}

func Int64(key string, val int64) Field {
	return zap.Int64(key, val)
}

func Float64(key string, val float64) Field {
	return zap.Float64(key, val)
}

func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

func Time(key string, val time.Time) Field {
	return zap.Time(key, val)
}

func Any(key string, val any) Field {
	return zap.Any(key, val)
}

// Error attaches err under the "error" key.
func Error(err error) Field {
	return zap.Error(err)
}

// Common keys used by job processing so log queries stay consistent.
const (
	KeyJobID    = "job_id"
	KeyQueue    = "queue"
	KeySourceID = "source_id"
	KeyURL      = "url"
)

// SourceID tags an entry with the connector id.
func SourceID(id string) Field {
	return zap.String(KeySourceID, id)
}

// JobID tags an entry with the queue job id.
func JobID(id string) Field {
	return zap.String(KeyJobID, id)
}

// Queue tags an entry with the queue name.
func Queue(name string) Field {
	return zap.String(KeyQueue, name)
}

// URL tags an entry with a request URL.
func URL(u string) Field {
	return zap.String(KeyURL, u)
}
