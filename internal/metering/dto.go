package metering

import (
	"time"

	"github.com/viralscript/viralscript/internal/identity"
)

// GenerateRequest captures the script brief from the client.
type GenerateRequest struct {
	Topic    string `json:"topic"`
	Platform string `json:"platform"`
	Tone     string `json:"tone"`
	Language string `json:"language"`
}

// GrantRequest claims a promotional grant. Reference identifies the ad view
// or refill offer and may be claimed once.
type GrantRequest struct {
	Reference string `json:"reference"`
}

// ScriptResponse is the API view of a generated script.
type ScriptResponse struct {
	ID               string    `json:"id"`
	Topic            string    `json:"topic"`
	Hook             string    `json:"hook"`
	Body             string    `json:"body"`
	CTA              string    `json:"cta"`
	Hashtags         []string  `json:"hashtags"`
	EstimatedSeconds int       `json:"estimated_seconds"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// GenerateResponse pairs the script with the charged user.
type GenerateResponse struct {
	Script ScriptResponse   `json:"script"`
	User   identity.Profile `json:"user"`
}

func toScriptResponse(s Script) ScriptResponse {
	return ScriptResponse{
		ID:               s.ID,
		Topic:            s.Topic,
		Hook:             s.Hook,
		Body:             s.Body,
		CTA:              s.CTA,
		Hashtags:         s.Hashtags,
		EstimatedSeconds: s.EstimatedSeconds,
		GeneratedAt:      s.GeneratedAt,
	}
}
