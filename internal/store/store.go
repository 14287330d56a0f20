// Package store provides session-store implementations keyed by user
// id. Sessions are persisted as full JSON snapshots; entries expire by
// TTL, which is the store's policy rather than the engine's.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/dkarpov/fitbot/internal/model"
)

func encodeSession(sess *model.Session) ([]byte, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return data, nil
}

func decodeSession(data []byte) (*model.Session, error) {
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}
