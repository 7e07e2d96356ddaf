package realtime

import (
	"encoding/json"
	"time"

	"atelier/cmd/internal/ids"
	v1 "atelier/shared/contracts/collab/v1"
)

// newEnvelope wraps a payload into a stamped v1 envelope.
func newEnvelope(eventType string, payload any, ts time.Time) (v1.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return v1.Envelope{}, err
	}

	id, err := ids.NewULID(ts)
	if err != nil {
		return v1.Envelope{}, err
	}

	return v1.Envelope{
		V:       v1.Version,
		Type:    eventType,
		ID:      id,
		TS:      ts.UTC(),
		Payload: raw,
	}, nil
}
