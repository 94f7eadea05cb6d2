package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	CategoryPhysical = "physical"
	CategoryMental   = "mental"
)

var validate = validator.New()

// Validator returns the shared validator used for challenge definitions and
// request payloads.
func Validator() *validator.Validate {
	return validate
}

// ChallengeDefinition is either a catalog row or an ephemeral payload supplied
// by the caller. ID and Active are only meaningful for catalog rows.
type ChallengeDefinition struct {
	ID            int64     `json:"id,omitempty"`
	Key           string    `json:"key" validate:"required,max=128"`
	Title         string    `json:"title" validate:"max=200"`
	Description   string    `json:"description,omitempty"`
	Points        int       `json:"points" validate:"gte=0"`
	Category      string    `json:"category"`
	RequiredDays  int       `json:"required_days" validate:"gte=1"`
	CooldownHours int       `json:"cooldown_hours" validate:"gte=0"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// Validate checks the points, required days and cooldown invariants.
func (d ChallengeDefinition) Validate() error {
	return validate.Struct(d)
}

// Cooldown returns the cooldown as a duration.
func (d ChallengeDefinition) Cooldown() time.Duration {
	return time.Duration(d.CooldownHours) * time.Hour
}

// DisplayTitle falls back to the key when no title was supplied.
func (d ChallengeDefinition) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Key
}

// ChallengeRef identifies a challenge either by catalog key (canonical) or by
// an inline definition (ephemeral).
type ChallengeRef struct {
	Key        string
	Definition *ChallengeDefinition
}

// Canonical references a catalog entry by key.
func Canonical(key string) ChallengeRef {
	return ChallengeRef{Key: key}
}

// Ephemeral references a caller-supplied definition.
func Ephemeral(def ChallengeDefinition) ChallengeRef {
	return ChallengeRef{Key: def.Key, Definition: &def}
}

// IsEphemeral reports whether the reference carries its own metadata.
func (r ChallengeRef) IsEphemeral() bool {
	return r.Definition != nil
}

var ErrEmptyChallengeRef = errors.New("challenge reference is empty")

// wireDefinition accepts the field names used by older clients alongside the
// current ones.
type wireDefinition struct {
	Key           json.RawMessage `json:"key"`
	ID            json.RawMessage `json:"id"`
	MongoID       json.RawMessage `json:"_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Points        *int            `json:"points"`
	XPPoints      *int            `json:"xp_points"`
	XP            *int            `json:"xp"`
	Category      string          `json:"category"`
	BadgeName     string          `json:"badgeName"`
	RequiredDays  *int            `json:"requiredDays"`
	RequiredDays2 *int            `json:"required_days"`
	TotalDays     *int            `json:"totalDays"`
	CooldownHours *int            `json:"cooldownHours"`
	Cooldown2     *int            `json:"cooldown_hours"`
}

// UnmarshalJSON decodes either a bare identifier (string or number) or an
// object carrying the challenge metadata.
func (r *ChallengeRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ErrEmptyChallengeRef
	}

	if data[0] != '{' {
		key, err := decodeIdentifier(data)
		if err != nil {
			return err
		}
		if key == "" {
			return ErrEmptyChallengeRef
		}
		*r = Canonical(key)
		return nil
	}

	var w wireDefinition
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode challenge: %w", err)
	}

	var key string
	for _, raw := range []json.RawMessage{w.Key, w.ID, w.MongoID} {
		if len(raw) == 0 {
			continue
		}
		k, err := decodeIdentifier(raw)
		if err != nil {
			return err
		}
		if k != "" {
			key = k
			break
		}
	}
	if key == "" {
		return ErrEmptyChallengeRef
	}

	def := ChallengeDefinition{
		Key:           key,
		Title:         w.Title,
		Description:   w.Description,
		Points:        firstInt(0, w.Points, w.XPPoints, w.XP),
		Category:      firstString(w.Category, w.BadgeName),
		RequiredDays:  firstInt(1, w.RequiredDays, w.RequiredDays2, w.TotalDays),
		CooldownHours: firstInt(0, w.CooldownHours, w.Cooldown2),
	}
	*r = Ephemeral(def)
	return nil
}

// MarshalJSON writes canonical refs as a bare string and ephemeral refs as an
// object.
func (r ChallengeRef) MarshalJSON() ([]byte, error) {
	if r.Definition == nil {
		return json.Marshal(r.Key)
	}
	return json.Marshal(struct {
		Key           string `json:"key"`
		Title         string `json:"title,omitempty"`
		Points        int    `json:"points"`
		Category      string `json:"category,omitempty"`
		RequiredDays  int    `json:"requiredDays"`
		CooldownHours int    `json:"cooldownHours"`
	}{
		Key:           r.Definition.Key,
		Title:         r.Definition.Title,
		Points:        r.Definition.Points,
		Category:      r.Definition.Category,
		RequiredDays:  r.Definition.RequiredDays,
		CooldownHours: r.Definition.CooldownHours,
	})
}

func decodeIdentifier(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("challenge identifier must be a string or number")
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

func firstInt(def int, vals ...*int) int {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return def
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
