package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type idKind uint8

const (
	idNull idKind = iota
	idString
	idNumber
)

// RequestID is a JSON-RPC id: a string, an integer or null.
// The zero value is the null id, which marks a notification.
// RequestID is comparable, so ids can be checked with ==.
type RequestID struct {
	kind idKind
	str  string
	num  int64
}

// NullID is the id used for notifications and for responses to requests
// whose id could not be read.
var NullID = RequestID{}

func StringID(s string) RequestID { return RequestID{kind: idString, str: s} }

func NumberID(n int64) RequestID { return RequestID{kind: idNumber, num: n} }

func (id RequestID) IsNull() bool { return id.kind == idNull }

// Value returns the id as a string, int64 or nil.
func (id RequestID) Value() any {
	switch id.kind {
	case idString:
		return id.str
	case idNumber:
		return id.num
	default:
		return nil
	}
}

// String is used for logging and as a map key for in-flight requests.
func (id RequestID) String() string {
	switch id.kind {
	case idString:
		return strconv.Quote(id.str)
	case idNumber:
		return strconv.FormatInt(id.num, 10)
	default:
		return "null"
	}
}

func (id RequestID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idString:
		return json.Marshal(id.str)
	case idNumber:
		return []byte(strconv.FormatInt(id.num, 10)), nil
	default:
		return []byte("null"), nil
	}
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = NullID
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	default:
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid request id %s: must be a string, integer or null", data)
		}
		*id = NumberID(n)
		return nil
	}
}
