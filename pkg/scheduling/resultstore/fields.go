package resultstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

const (
	fieldStatus     = "status"
	fieldError      = "error"
	fieldWorker     = "worker"
	fieldDuration   = "duration_ns"
	fieldQueueWait  = "queue_wait_ns"
	fieldFinishedAt = "finished_at"
)

// resultFields encodes result as a Redis hash.
func resultFields(result workerpool.Result, finishedAt time.Time) map[string]interface{} {
	status := StatusCompleted
	errText := ""
	if result.Error != nil {
		status = StatusFailed
		errText = result.Error.Error()
	}

	return map[string]interface{}{
		fieldStatus:     string(status),
		fieldError:      errText,
		fieldWorker:     result.WorkerID,
		fieldDuration:   result.Duration.Nanoseconds(),
		fieldQueueWait:  result.QueueWait.Nanoseconds(),
		fieldFinishedAt: finishedAt.UnixNano(),
	}
}

// entryFromFields decodes a hash written by resultFields.
func entryFromFields(taskID uint64, fields map[string]string) (*Entry, error) {
	entry := &Entry{
		TaskID: taskID,
		Status: Status(fields[fieldStatus]),
		Error:  fields[fieldError],
	}

	switch entry.Status {
	case StatusCompleted, StatusFailed:
	default:
		return nil, fmt.Errorf("unknown status %q", entry.Status)
	}

	worker, err := parseCounter(fields, fieldWorker)
	if err != nil {
		return nil, err
	}
	entry.WorkerID = int(worker)

	duration, err := parseCounter(fields, fieldDuration)
	if err != nil {
		return nil, err
	}
	entry.Duration = time.Duration(duration)

	wait, err := parseCounter(fields, fieldQueueWait)
	if err != nil {
		return nil, err
	}
	entry.QueueWait = time.Duration(wait)

	finished, err := parseCounter(fields, fieldFinishedAt)
	if err != nil {
		return nil, err
	}
	entry.FinishedAt = time.Unix(0, finished)

	return entry, nil
}

// parseCounter reads an integer field; a missing field is zero.
func parseCounter(fields map[string]string, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return v, nil
}
