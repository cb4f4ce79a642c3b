package pipeline

import "github.com/metalagman/quorum/internal/agent"

// Node statuses reported in graph updates.
const (
	NodeIdle       = "idle"
	NodeConsulting = "consulting"
	NodePlanning   = "planning"
	NodeWriting    = "writing"
	NodeReviewing  = "reviewing"
)

// LogPayload is the payload of a log event.
type LogPayload struct {
	Node    string         `json:"node"`
	Message string         `json:"message"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// GraphNode is a stakeholder in the collaboration graph.
type GraphNode struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

// GraphEdge is a directed relation between two stakeholders.
type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Topology is the initial graph_update payload of a run.
type Topology struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Stakeholders lists the profile ids every run needs, in display order.
var Stakeholders = []string{
	agent.CountryDirector, agent.CDTEconomist, agent.CDTTechnical,
	agent.MinistryFinance, agent.MinistryAgriculture, agent.ReviewerREN, agent.ReviewerODE,
}

// NewTopology lays out every profile as an idle node with the fixed advice edges.
func NewTopology(profiles agent.Profiles) Topology {
	t := Topology{
		Edges: []GraphEdge{
			{ID: "gov-cd", Source: agent.MinistryFinance, Target: agent.CountryDirector, Label: "priorities"},
			{ID: "gov2-cd", Source: agent.MinistryAgriculture, Target: agent.CountryDirector, Label: "priorities"},
			{ID: "cdt-cd", Source: agent.CDTEconomist, Target: agent.CountryDirector, Label: "technical review"},
			{ID: "cdt2-cd", Source: agent.CDTTechnical, Target: agent.CountryDirector, Label: "technical review"},
			{ID: "ren-cd", Source: agent.ReviewerREN, Target: agent.CountryDirector, Label: "quality review"},
			{ID: "ode-cd", Source: agent.ReviewerODE, Target: agent.CountryDirector, Label: "evaluation"},
		},
	}
	for _, id := range Stakeholders {
		label := id
		if p, ok := profiles[id]; ok && p.Label != "" {
			label = p.Label
		}
		t.Nodes = append(t.Nodes, GraphNode{ID: id, Label: label, Status: NodeIdle})
	}
	return t
}

// StatusPayload is the payload of a run_status event.
type StatusPayload struct {
	Status      string         `json:"status"`
	Round       int            `json:"round,omitempty"`
	CandidateID string         `json:"candidate_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Artifacts   map[string]any `json:"artifacts,omitempty"`
}

// RoundPayload is the payload of a round_update event.
type RoundPayload struct {
	Round       int    `json:"round"`
	CandidateID string `json:"candidate_id"`
}

// GraphPayload is the payload of a graph_update event that changes node statuses.
type GraphPayload struct {
	NodeStatus map[string]string `json:"node_status"`
}
