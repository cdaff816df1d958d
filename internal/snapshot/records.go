package snapshot

import (
	"bytes"
	"encoding/json"
)

// ServiceStatus is one row of ExchangeServices.json.
type ServiceStatus struct {
	Name     string `json:"Name"`
	Status   string `json:"Status"`
	CssClass string `json:"CssClass"`
}

// MailCounters is the MailStats.json object.
type MailCounters struct {
	SentLastHour     int64 `json:"SentLastHour"`
	ReceivedLastHour int64 `json:"ReceivedLastHour"`
}

// DecodeList decodes an array document into T, wrapping a lone object as a
// one-element list.
func DecodeList[T any](data []byte) ([]T, error) {
	if err := CheckShape(data); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if trimmed[0] == '{' {
		var one T
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, err
		}
		return []T{one}, nil
	}
	var out []T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeMailCounters decodes MailStats.json. A one-element array is accepted.
func DecodeMailCounters(data []byte) (*MailCounters, error) {
	items, err := DecodeList[MailCounters](data)
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}
