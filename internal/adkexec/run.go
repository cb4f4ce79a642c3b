// Package adkexec runs ADK agents in a throwaway in-memory session.
package adkexec

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/adk/agent"
	adkrunner "google.golang.org/adk/runner"
	"google.golang.org/adk/session"
)

// Defaults for Input fields left empty.
const (
	DefaultAppName = "quorum"
	DefaultUserID  = "quorum-user"
)

// Input describes one agent execution.
type Input struct {
	AppName      string
	UserID       string
	SessionID    string
	Agent        agent.Agent
	InitialState map[string]any
	// OnEvent sees every event the agent yields.
	OnEvent func(*session.Event)
}

// Result is what an execution leaves behind.
type Result struct {
	// State is a copy of the final session state.
	State  map[string]any
	Events int
}

// Run executes the agent to completion. The first error yielded by the agent
// stops the execution and is returned unwrapped.
func Run(ctx context.Context, in Input) (Result, error) {
	if in.Agent == nil {
		return Result{}, errors.New("agent is required")
	}
	if in.AppName == "" {
		in.AppName = DefaultAppName
	}
	if in.UserID == "" {
		in.UserID = DefaultUserID
	}

	sessions := session.InMemoryService()
	r, err := adkrunner.New(adkrunner.Config{
		AppName:        in.AppName,
		Agent:          in.Agent,
		SessionService: sessions,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create ADK runner: %w", err)
	}
	created, err := sessions.Create(ctx, &session.CreateRequest{
		AppName:   in.AppName,
		UserID:    in.UserID,
		SessionID: in.SessionID,
		State:     in.InitialState,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create ADK session: %w", err)
	}
	sessionID := created.Session.ID()

	var res Result
	for ev, runErr := range r.Run(ctx, in.UserID, sessionID, nil, agent.RunConfig{}) {
		if runErr != nil {
			return res, runErr
		}
		if ev == nil {
			continue
		}
		res.Events++
		if in.OnEvent != nil {
			in.OnEvent(ev)
		}
	}

	final, err := sessions.Get(ctx, &session.GetRequest{
		AppName:   in.AppName,
		UserID:    in.UserID,
		SessionID: sessionID,
	})
	if err != nil {
		return res, fmt.Errorf("get ADK session: %w", err)
	}
	res.State = map[string]any{}
	for k, v := range final.Session.State().All() {
		res.State[k] = v
	}
	return res, nil
}
