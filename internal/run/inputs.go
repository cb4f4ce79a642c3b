package run

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/metalagman/quorum/internal/agent"
	"github.com/metalagman/quorum/internal/config"
)

// Input limits.
const (
	MaxSimulations = 100
	MaxRounds      = 6
	MaxTop         = 5
)

// Inputs describe the document a run produces.
type Inputs struct {
	Country        string   `json:"country,omitempty"`
	Title          string   `json:"title,omitempty"`
	UserNotes      string   `json:"user_notes,omitempty"`
	OutputType     string   `json:"output_type"     validate:"omitempty,oneof=cosop pcn pdr"`
	NumSimulations int      `json:"num_simulations" validate:"gte=0"`
	MaxRounds      int      `json:"max_rounds"      validate:"gte=0"`
	TopCandidates  int      `json:"top_candidates"  validate:"gte=0"`
	Uploads        []string `json:"uploads,omitempty" validate:"dive,required"`
}

// ErrInvalidInputs wraps input validation failures.
var ErrInvalidInputs = errors.New("invalid inputs")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize validates the inputs, fills unset counts from defaults and clamps
// them to their limits.
func (in Inputs) Normalize(d config.RunDefaults) (Inputs, error) {
	in.OutputType = strings.ToLower(strings.TrimSpace(in.OutputType))
	if err := validate.Struct(in); err != nil {
		return Inputs{}, fmt.Errorf("%w: %w", ErrInvalidInputs, err)
	}
	if in.OutputType == "" {
		in.OutputType = agent.OutputCOSOP
	}
	if in.NumSimulations == 0 {
		in.NumSimulations = d.NumSimulations
	}
	if in.MaxRounds == 0 {
		in.MaxRounds = d.MaxRounds
	}
	if in.TopCandidates == 0 {
		in.TopCandidates = d.TopCandidates
	}
	in.NumSimulations = clamp(in.NumSimulations, 1, MaxSimulations)
	in.MaxRounds = clamp(in.MaxRounds, 1, MaxRounds)
	in.TopCandidates = clamp(in.TopCandidates, 1, min(in.NumSimulations, MaxTop))
	return in, nil
}

// Brief returns the agent-facing part of the inputs.
func (in Inputs) Brief() agent.Brief {
	return agent.Brief{
		Country:    in.Country,
		Title:      in.Title,
		UserNotes:  in.UserNotes,
		OutputType: in.OutputType,
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
