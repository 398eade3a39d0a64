package aggregation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/acuevasp/hookrelay/pkg/db/models"
)

// policyFinding is the staged payload shape of policy evaluation events.
type policyFinding struct {
	Host              string `json:"host"`
	PolicyID          string `json:"policyId"`
	PolicyName        string `json:"policyName"`
	PolicyDescription string `json:"policyDescription"`
	Condition         string `json:"condition"`
}

// PolicyDigest summarizes the window's policy findings: how many distinct
// hosts were affected overall, and per policy.
type PolicyDigest struct {
	TotalHosts int                 `json:"totalHosts"`
	Policies   []PolicyDigestEntry `json:"policies"`
}

type PolicyDigestEntry struct {
	PolicyID    string   `json:"policyId"`
	PolicyName  string   `json:"policyName"`
	Description string   `json:"description,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Hosts       []string `json:"hosts"`
	HostCount   int      `json:"hostCount"`
}

// PolicyFindingsAggregator dedupes hosts at two levels. A host reported by
// several findings counts once toward the digest total, and once per policy
// that flagged it, no matter how many events mention it.
type PolicyFindingsAggregator struct{}

func (PolicyFindingsAggregator) Aggregate(_ context.Context, key Key, rows []models.EmailAggregation) (json.RawMessage, error) {
	if err := ensureSingleTenant(key, rows); err != nil {
		return nil, err
	}

	type policyAcc struct {
		name        string
		description string
		condition   string
		hostSet     map[string]struct{}
		hosts       []string
	}

	globalHosts := map[string]struct{}{}
	policies := map[string]*policyAcc{}
	var policyOrder []string

	for _, row := range rows {
		var finding policyFinding
		if err := json.Unmarshal(row.Payload, &finding); err != nil {
			return nil, fmt.Errorf("decoding staged row %s: %w", row.ID, err)
		}
		if finding.Host == "" || finding.PolicyID == "" {
			continue
		}

		globalHosts[finding.Host] = struct{}{}

		acc, seen := policies[finding.PolicyID]
		if !seen {
			acc = &policyAcc{
				name:        finding.PolicyName,
				description: finding.PolicyDescription,
				condition:   finding.Condition,
				hostSet:     map[string]struct{}{},
			}
			policies[finding.PolicyID] = acc
			policyOrder = append(policyOrder, finding.PolicyID)
		}
		if _, dup := acc.hostSet[finding.Host]; !dup {
			acc.hostSet[finding.Host] = struct{}{}
			acc.hosts = append(acc.hosts, finding.Host)
		}
	}

	digest := PolicyDigest{
		TotalHosts: len(globalHosts),
		Policies:   make([]PolicyDigestEntry, 0, len(policyOrder)),
	}
	for _, policyID := range policyOrder {
		acc := policies[policyID]
		digest.Policies = append(digest.Policies, PolicyDigestEntry{
			PolicyID:    policyID,
			PolicyName:  acc.name,
			Description: acc.description,
			Condition:   acc.condition,
			Hosts:       acc.hosts,
			HostCount:   len(acc.hosts),
		})
	}

	payload, err := json.Marshal(digest)
	if err != nil {
		return nil, fmt.Errorf("encoding policy digest: %w", err)
	}
	return payload, nil
}

// eventCount is the staged payload shape for generic countable events.
type eventCount struct {
	EventType string `json:"eventType"`
}

// EventCountDigest is a plain tally per event type.
type EventCountDigest struct {
	TotalEvents int              `json:"totalEvents"`
	ByType      []EventTypeCount `json:"byType"`
}

type EventTypeCount struct {
	EventType string `json:"eventType"`
	Count     int    `json:"count"`
}

// EventCountAggregator counts staged events per type without dedup. Used by
// bundles whose digests report volume rather than affected assets.
type EventCountAggregator struct{}

func (EventCountAggregator) Aggregate(_ context.Context, key Key, rows []models.EmailAggregation) (json.RawMessage, error) {
	if err := ensureSingleTenant(key, rows); err != nil {
		return nil, err
	}

	counts := map[string]int{}
	var order []string
	for _, row := range rows {
		var evt eventCount
		if err := json.Unmarshal(row.Payload, &evt); err != nil {
			return nil, fmt.Errorf("decoding staged row %s: %w", row.ID, err)
		}
		eventType := evt.EventType
		if eventType == "" {
			eventType = "unknown"
		}
		if _, seen := counts[eventType]; !seen {
			order = append(order, eventType)
		}
		counts[eventType]++
	}

	digest := EventCountDigest{
		TotalEvents: len(rows),
		ByType:      make([]EventTypeCount, 0, len(order)),
	}
	for _, eventType := range order {
		digest.ByType = append(digest.ByType, EventTypeCount{EventType: eventType, Count: counts[eventType]})
	}

	payload, err := json.Marshal(digest)
	if err != nil {
		return nil, fmt.Errorf("encoding event count digest: %w", err)
	}
	return payload, nil
}
