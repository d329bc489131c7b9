package metering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request describes the script a caller wants generated.
type Request struct {
	Topic    string
	Platform string
	Tone     string
	Language string
}

// Script is the generated content. Only the fields the credit flow needs
// are modelled; the generator owns the rest.
type Script struct {
	ID               string
	Topic            string
	Hook             string
	Body             string
	CTA              string
	Hashtags         []string
	EstimatedSeconds int
	GeneratedAt      time.Time
}

// Generator represents the content-generation collaborator. Each successful
// call costs a fixed number of credits.
type Generator interface {
	Generate(ctx context.Context, req Request) (Script, error)
}

// StaticGenerator returns a canned script. It stands in for the model API
// in development and tests.
type StaticGenerator struct{}

// Generate returns a script templated from the request.
func (StaticGenerator) Generate(_ context.Context, req Request) (Script, error) {
	tag := "#" + strings.ReplaceAll(strings.ToLower(req.Topic), " ", "")
	return Script{
		ID:               uuid.NewString(),
		Topic:            req.Topic,
		Hook:             fmt.Sprintf("Nobody talks about this side of %s.", req.Topic),
		Body:             fmt.Sprintf("Here is what %s looks like on %s when you stop overthinking it.", req.Topic, req.Platform),
		CTA:              "Follow for part two.",
		Hashtags:         []string{tag, "#viral", "#fyp"},
		EstimatedSeconds: 30,
		GeneratedAt:      time.Now().UTC(),
	}, nil
}
