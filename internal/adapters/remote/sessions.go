package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ghalamif/TrailSync/internal/domain"
)

// wireSession is one session as the backend serializes it. Timestamps arrive either as
// RFC 3339 strings, epoch milliseconds, or Firestore {_seconds,_nanoseconds} objects.
type wireSession struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	StartTime      json.RawMessage `json:"startTime"`
	EndTime        json.RawMessage `json:"endTime"`
	Status         string          `json:"status"`
	DataPointCount int             `json:"dataPointCount"`
}

func (w wireSession) summary() domain.SessionSummary {
	return domain.SessionSummary{
		ID:             w.ID,
		UserID:         w.UserID,
		StartTime:      parseTimestamp(w.StartTime),
		EndTime:        parseTimestamp(w.EndTime),
		Status:         w.Status,
		DataPointCount: w.DataPointCount,
	}
}

// decodeSessions accepts a plain array, the doubly wrapped {"sessions": [...]} form some
// backend versions emit, and an object keyed by session id.
func decodeSessions(raw json.RawMessage) ([]wireSession, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		var list []wireSession
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
		return list, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
		if inner, ok := obj["sessions"]; ok {
			return decodeSessions(inner)
		}
		list := make([]wireSession, 0, len(obj))
		for key, v := range obj {
			var ws wireSession
			if err := json.Unmarshal(v, &ws); err != nil {
				continue
			}
			if ws.ID == "" {
				ws.ID = key
			}
			list = append(list, ws)
		}
		sort.Slice(list, func(i, j int) bool {
			return parseTimestamp(list[i].StartTime).After(parseTimestamp(list[j].StartTime))
		})
		return list, nil
	default:
		return nil, fmt.Errorf("decode sessions: unexpected payload %.20q", raw)
	}
}

func parseTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}
		}
		return t.UTC()
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(int64(ms)).UTC()
	}

	var fs struct {
		Seconds      *int64 `json:"_seconds"`
		Nanoseconds  int64  `json:"_nanoseconds"`
		PlainSeconds *int64 `json:"seconds"`
		PlainNanos   int64  `json:"nanoseconds"`
	}
	if err := json.Unmarshal(raw, &fs); err == nil {
		switch {
		case fs.Seconds != nil:
			return time.Unix(*fs.Seconds, fs.Nanoseconds).UTC()
		case fs.PlainSeconds != nil:
			return time.Unix(*fs.PlainSeconds, fs.PlainNanos).UTC()
		}
	}
	return time.Time{}
}
