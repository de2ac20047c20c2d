package resultstore

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/vnykmshr/threadpool/internal/testutil"
	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

// stringify mirrors how Redis returns hash values.
func stringify(fields map[string]interface{}) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		switch v := v.(type) {
		case string:
			out[k] = v
		case int:
			out[k] = strconv.Itoa(v)
		case int64:
			out[k] = strconv.FormatInt(v, 10)
		}
	}
	return out
}

func TestResultFieldsRoundTrip(t *testing.T) {
	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		result     workerpool.Result
		wantStatus Status
		wantError  string
	}{
		{
			name: "completed",
			result: workerpool.Result{
				TaskID: 7, WorkerID: 2,
				Duration: 3 * time.Millisecond, QueueWait: time.Millisecond,
			},
			wantStatus: StatusCompleted,
		},
		{
			name: "failed",
			result: workerpool.Result{
				TaskID: 8, WorkerID: 0,
				Error:    &tperrors.TaskError{TaskID: 8, Err: errors.New("boom")},
				Duration: time.Second,
			},
			wantStatus: StatusFailed,
			wantError:  "task 8 failed: boom",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			fields := stringify(resultFields(tt.result, finished))

			entry, err := entryFromFields(tt.result.TaskID, fields)
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, entry.TaskID, tt.result.TaskID)
			testutil.AssertEqual(t, entry.Status, tt.wantStatus)
			testutil.AssertEqual(t, entry.Error, tt.wantError)
			testutil.AssertEqual(t, entry.WorkerID, tt.result.WorkerID)
			testutil.AssertEqual(t, entry.Duration, tt.result.Duration)
			testutil.AssertEqual(t, entry.QueueWait, tt.result.QueueWait)
			testutil.AssertEqual(t, entry.FinishedAt.Equal(finished), true)
		})
	}
}

func TestEntryFromFieldsErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"unknown status", map[string]string{fieldStatus: "lost"}},
		{"missing status", map[string]string{fieldWorker: "1"}},
		{"bad duration", map[string]string{fieldStatus: "completed", fieldDuration: "soon"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := entryFromFields(1, tt.fields)
			testutil.AssertError(t, err)
		})
	}
}

func TestParseCounter(t *testing.T) {
	fields := map[string]string{"completed": "12", "failed": "", "bad": "x"}

	v, err := parseCounter(fields, "completed")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, int64(12))

	v, err = parseCounter(fields, "failed")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, int64(0))

	v, err = parseCounter(fields, "missing")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, int64(0))

	_, err = parseCounter(fields, "bad")
	testutil.AssertError(t, err)
}
