package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jakechorley/donornet/pkg/core/model"
)

// ChangeOp is the kind of change carried by a ChangeEvent
type ChangeOp string

const (
	OpInsert ChangeOp = "INSERT"
	OpDelete ChangeOp = "DELETE"
)

// ChangeEvent is one alert change-feed message
type ChangeEvent struct {
	Op    ChangeOp
	ID    string
	Alert model.Alert // set for OpInsert
}

// InsertEvent builds the event announcing a new alert
func InsertEvent(a model.Alert) ChangeEvent {
	return ChangeEvent{Op: OpInsert, ID: a.ID, Alert: a}
}

// DeleteEvent builds the event announcing a removed alert
func DeleteEvent(id string) ChangeEvent {
	return ChangeEvent{Op: OpDelete, ID: id}
}

// AlertRecord is the wire shape of an alert row, matching the alerts table columns
type AlertRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	BloodType string    `json:"blood_type"`
	Location  string    `json:"location"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type wireEvent struct {
	Op     string       `json:"op"`
	ID     string       `json:"id"`
	Record *AlertRecord `json:"record,omitempty"`
}

// ToAlert validates the record and converts it
func (r AlertRecord) ToAlert() (model.Alert, error) {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return model.Alert{}, fmt.Errorf("alert record has no id")
	case strings.TrimSpace(r.UserID) == "":
		return model.Alert{}, fmt.Errorf("alert record %s has no author", r.ID)
	case r.CreatedAt.IsZero():
		return model.Alert{}, fmt.Errorf("alert record %s has no creation time", r.ID)
	}

	role := r.Role
	if role == "" {
		role = "unknown"
	}

	return model.Alert{
		ID:         r.ID,
		CreatedAt:  r.CreatedAt.UTC(),
		AuthorID:   model.Identity(r.UserID),
		AuthorRole: role,
		BloodType:  r.BloodType,
		Location:   r.Location,
		Message:    r.Message,
	}, nil
}

// RecordFromAlert converts an alert to its wire shape
func RecordFromAlert(a model.Alert) AlertRecord {
	return AlertRecord{
		ID:        a.ID,
		UserID:    string(a.AuthorID),
		Role:      a.AuthorRole,
		BloodType: a.BloodType,
		Location:  a.Location,
		Message:   a.Message,
		CreatedAt: a.CreatedAt,
	}
}

// DecodeChangeEvent parses and validates a change-feed payload.
// Unknown operations and malformed records are rejected.
func DecodeChangeEvent(data []byte) (ChangeEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return ChangeEvent{}, fmt.Errorf("failed to parse change event: %w", err)
	}

	switch ChangeOp(strings.ToUpper(w.Op)) {
	case OpInsert:
		if w.Record == nil {
			return ChangeEvent{}, fmt.Errorf("insert event has no record")
		}
		alert, err := w.Record.ToAlert()
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("invalid insert event: %w", err)
		}
		if w.ID != "" && w.ID != alert.ID {
			return ChangeEvent{}, fmt.Errorf("insert event id %s does not match record id %s", w.ID, alert.ID)
		}
		return InsertEvent(alert), nil

	case OpDelete:
		id := w.ID
		if id == "" && w.Record != nil {
			id = w.Record.ID
		}
		if strings.TrimSpace(id) == "" {
			return ChangeEvent{}, fmt.Errorf("delete event has no id")
		}
		return DeleteEvent(id), nil

	default:
		return ChangeEvent{}, fmt.Errorf("unsupported change operation %q", w.Op)
	}
}

// EncodeChangeEvent renders ev in the same shape DecodeChangeEvent reads
func EncodeChangeEvent(ev ChangeEvent) ([]byte, error) {
	w := wireEvent{Op: string(ev.Op), ID: ev.ID}
	switch ev.Op {
	case OpInsert:
		rec := RecordFromAlert(ev.Alert)
		w.Record = &rec
		w.ID = rec.ID
	case OpDelete:
	default:
		return nil, fmt.Errorf("unsupported change operation %q", ev.Op)
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change event: %w", err)
	}
	return data, nil
}
