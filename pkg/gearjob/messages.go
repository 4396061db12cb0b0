package gearjob

import (
	"encoding/base64"
	"fmt"
	"math"
	"time"

	"github.com/juliaogris/gearjob/pkg/job"
	"github.com/juliaogris/gearjob/pkg/queue"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages of the JobServer service are protobuf Structs. Byte payloads are
// base64 encoded strings, times are RFC 3339 strings and counters are
// numbers, exact up to 2^53.

// newStruct converts fields to a protobuf Struct.
func newStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMessage, err)
	}
	return s, nil
}

func getString(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func getBool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

// maxExact is the largest integer a protobuf number value holds exactly.
const maxExact = 1 << 53

func getUint(s *structpb.Struct, key string) (uint64, error) {
	n, err := getInt(s, key, 0, maxExact)
	return uint64(n), err //nolint:gosec // n is within [0, 2^53]
}

// getInt returns the integer number field key, which must lie within
// [lo, hi]. A missing field is 0.
func getInt(s *structpb.Struct, key string, lo, hi int64) (int64, error) {
	v := s.GetFields()[key].GetNumberValue()
	if v != math.Trunc(v) || v < float64(lo) || v > float64(hi) {
		return 0, fmt.Errorf("%w: field %q: %v is not an integer in [%d, %d]", ErrMessage, key, v, lo, hi)
	}
	return int64(v), nil
}

func getPriority(s *structpb.Struct) (queue.Priority, error) {
	n, err := getInt(s, "priority", int64(queue.PriorityLow), int64(queue.PriorityHigh))
	return queue.Priority(n), err
}

func getBytes(s *structpb.Struct, key string) ([]byte, error) {
	v := getString(s, key)
	if v == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q: %w", ErrMessage, key, err)
	}
	return b, nil
}

func getStrings(s *structpb.Struct, key string) []string {
	values := s.GetFields()[key].GetListValue().GetValues()
	result := make([]string, 0, len(values))
	for _, v := range values {
		result = append(result, v.GetStringValue())
	}
	return result
}

func getTime(s *structpb.Struct, key string) (time.Time, error) {
	v := getString(s, key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: field %q: %w", ErrMessage, key, err)
	}
	return t, nil
}

func encodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// encodeTime handles the zero value of time.Time by returning "".
func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func pbHandle(handle string) (*structpb.Struct, error) {
	return newStruct(map[string]any{"handle": handle})
}

func pbRequest(req queue.Request) (*structpb.Struct, error) {
	return newStruct(map[string]any{
		"func":       req.Func,
		"uniq":       req.Uniq,
		"arg":        encodeBytes(req.Arg),
		"priority":   float64(req.Priority),
		"background": req.Background,
	})
}

func requestFromPB(s *structpb.Struct) (queue.Request, error) {
	arg, err := getBytes(s, "arg")
	if err != nil {
		return queue.Request{}, err
	}
	priority, err := getPriority(s)
	if err != nil {
		return queue.Request{}, err
	}
	return queue.Request{
		Func:       getString(s, "func"),
		Uniq:       getString(s, "uniq"),
		Arg:        arg,
		Priority:   priority,
		Background: getBool(s, "background"),
	}, nil
}

func pbStatus(st queue.Status) (*structpb.Struct, error) {
	return newStruct(map[string]any{
		"handle":      st.Handle,
		"func":        st.Func,
		"uniq":        st.Uniq,
		"priority":    float64(st.Priority),
		"background":  st.Background,
		"state":       float64(st.State),
		"numerator":   float64(st.Numerator),
		"denominator": float64(st.Denominator),
		"submitted":   encodeTime(st.Submitted),
		"started":     encodeTime(st.Started),
		"stopped":     encodeTime(st.Stopped),
	})
}

func statusFromPB(s *structpb.Struct) (queue.Status, error) {
	st := queue.Status{
		Handle:     getString(s, "handle"),
		Func:       getString(s, "func"),
		Uniq:       getString(s, "uniq"),
		Background: getBool(s, "background"),
	}
	var err error
	if st.Priority, err = getPriority(s); err != nil {
		return queue.Status{}, err
	}
	state, err := getInt(s, "state", int64(queue.StatePending), int64(queue.StateFailed))
	if err != nil {
		return queue.Status{}, err
	}
	st.State = queue.State(state)
	if st.Numerator, err = getUint(s, "numerator"); err != nil {
		return queue.Status{}, err
	}
	if st.Denominator, err = getUint(s, "denominator"); err != nil {
		return queue.Status{}, err
	}
	if st.Submitted, err = getTime(s, "submitted"); err != nil {
		return queue.Status{}, err
	}
	if st.Started, err = getTime(s, "started"); err != nil {
		return queue.Status{}, err
	}
	if st.Stopped, err = getTime(s, "stopped"); err != nil {
		return queue.Status{}, err
	}
	return st, nil
}

func pbFuncs(funcs []string) (*structpb.Struct, error) {
	values := make([]any, len(funcs))
	for i, fn := range funcs {
		values[i] = fn
	}
	return newStruct(map[string]any{"funcs": values})
}

func pbAssignment(a queue.Assignment) (*structpb.Struct, error) {
	return newStruct(map[string]any{
		"handle": a.Handle,
		"func":   a.Func,
		"uniq":   a.Uniq,
		"arg":    encodeBytes(a.Arg),
	})
}

func assignmentFromPB(s *structpb.Struct) (queue.Assignment, error) {
	arg, err := getBytes(s, "arg")
	if err != nil {
		return queue.Assignment{}, err
	}
	return queue.Assignment{
		Handle: getString(s, "handle"),
		Func:   getString(s, "func"),
		Uniq:   getString(s, "uniq"),
		Arg:    arg,
	}, nil
}

// pbUpdate encodes u; handle is empty for updates streamed by Watch.
func pbUpdate(handle string, u job.Update) (*structpb.Struct, error) {
	fields := map[string]any{
		"kind":        u.Kind.String(),
		"data":        encodeBytes(u.Data),
		"numerator":   float64(u.Numerator),
		"denominator": float64(u.Denominator),
	}
	if handle != "" {
		fields["handle"] = handle
	}
	return newStruct(fields)
}

func updateFromPB(s *structpb.Struct) (job.Update, error) {
	kind, err := parseKind(getString(s, "kind"))
	if err != nil {
		return job.Update{}, err
	}
	data, err := getBytes(s, "data")
	if err != nil {
		return job.Update{}, err
	}
	numerator, err := getUint(s, "numerator")
	if err != nil {
		return job.Update{}, err
	}
	denominator, err := getUint(s, "denominator")
	if err != nil {
		return job.Update{}, err
	}
	return job.Update{
		Kind:        kind,
		Data:        data,
		Numerator:   numerator,
		Denominator: denominator,
	}, nil
}

func parseKind(s string) (job.UpdateKind, error) {
	for _, k := range []job.UpdateKind{job.UpdateStatus, job.UpdateData, job.UpdateComplete, job.UpdateFail} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown update kind %q", ErrMessage, s)
}
