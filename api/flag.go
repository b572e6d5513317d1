package api

import (
	"bytes"
	"fmt"
)

// flag is a boolean request field that also accepts the numbers 0 and 1.
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("expected true, false, 0 or 1, got %s", data)
	}
	return nil
}
