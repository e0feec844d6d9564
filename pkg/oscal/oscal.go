// Package oscal converts between the hub's assessment records and the NIST
// OSCAL JSON schema subset: assessment-results, system-security-plan and
// plan-of-action-and-milestones documents.
package oscal

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cmmc-tools/integrations-hub/pkg/store"
)

// Kind discriminates the three supported document types. KindUnknown is the
// parse sentinel for an unrecognized root key; it is a result, not an error,
// so callers can render a user-facing format message.
type Kind string

const (
	KindAssessmentResults  Kind = "assessment-results"
	KindSystemSecurityPlan Kind = "system-security-plan"
	KindPOAM               Kind = "plan-of-action-and-milestones"
	KindUnknown            Kind = "unknown"
)

const oscalVersion = "1.1.2"

// Finding is one flattened assessment-results finding. State passes through
// as found in the document; unknown states are kept, not dropped.
type Finding struct {
	ControlID string `json:"controlId"`
	Title     string `json:"title"`
	State     string `json:"state"`
}

// ImplementedRequirement is one flattened SSP implemented-requirement.
type ImplementedRequirement struct {
	ControlID   string `json:"controlId"`
	Description string `json:"description"`
}

// POAMEntry is one flattened POA&M item.
type POAMEntry struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Document is a parsed OSCAL document with its type-specific content
// flattened into a single list.
type Document struct {
	Kind         Kind                     `json:"kind"`
	Title        string                   `json:"title"`
	LastModified string                   `json:"lastModified,omitempty"`
	Findings     []Finding                `json:"findings,omitempty"`
	Requirements []ImplementedRequirement `json:"requirements,omitempty"`
	Items        []POAMEntry              `json:"items,omitempty"`
}

type rawMetadata struct {
	Title        string `json:"title"`
	LastModified string `json:"last-modified"`
}

type rawAssessmentResults struct {
	Metadata rawMetadata `json:"metadata"`
	Results  []struct {
		Findings []struct {
			Title  string `json:"title"`
			Target struct {
				TargetID string `json:"target-id"`
				Status   struct {
					State string `json:"state"`
				} `json:"status"`
			} `json:"target"`
		} `json:"findings"`
	} `json:"results"`
}

type rawSSP struct {
	Metadata              rawMetadata `json:"metadata"`
	ControlImplementation struct {
		ImplementedRequirements []struct {
			ControlID   string `json:"control-id"`
			Description string `json:"description"`
			Remarks     string `json:"remarks"`
		} `json:"implemented-requirements"`
	} `json:"control-implementation"`
}

type rawPOAM struct {
	Metadata  rawMetadata `json:"metadata"`
	POAMItems []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"poam-items"`
}

// Parse detects the document type by root key and flattens its content.
// Malformed JSON is an error; an unrecognized root key yields a KindUnknown
// document instead.
func Parse(data []byte) (*Document, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse OSCAL document: %w", err)
	}

	if raw, ok := root[string(KindAssessmentResults)]; ok {
		var ar rawAssessmentResults
		if err := json.Unmarshal(raw, &ar); err != nil {
			return nil, fmt.Errorf("failed to parse assessment-results: %w", err)
		}
		doc := &Document{Kind: KindAssessmentResults, Title: ar.Metadata.Title, LastModified: ar.Metadata.LastModified}
		for _, result := range ar.Results {
			for _, f := range result.Findings {
				doc.Findings = append(doc.Findings, Finding{
					ControlID: f.Target.TargetID,
					Title:     f.Title,
					State:     f.Target.Status.State,
				})
			}
		}
		return doc, nil
	}

	if raw, ok := root[string(KindSystemSecurityPlan)]; ok {
		var ssp rawSSP
		if err := json.Unmarshal(raw, &ssp); err != nil {
			return nil, fmt.Errorf("failed to parse system-security-plan: %w", err)
		}
		doc := &Document{Kind: KindSystemSecurityPlan, Title: ssp.Metadata.Title, LastModified: ssp.Metadata.LastModified}
		for _, req := range ssp.ControlImplementation.ImplementedRequirements {
			desc := req.Description
			if desc == "" {
				desc = req.Remarks
			}
			doc.Requirements = append(doc.Requirements, ImplementedRequirement{
				ControlID:   req.ControlID,
				Description: desc,
			})
		}
		return doc, nil
	}

	if raw, ok := root[string(KindPOAM)]; ok {
		var poam rawPOAM
		if err := json.Unmarshal(raw, &poam); err != nil {
			return nil, fmt.Errorf("failed to parse plan-of-action-and-milestones: %w", err)
		}
		doc := &Document{Kind: KindPOAM, Title: poam.Metadata.Title, LastModified: poam.Metadata.LastModified}
		for _, item := range poam.POAMItems {
			doc.Items = append(doc.Items, POAMEntry{Title: item.Title, Description: item.Description})
		}
		return doc, nil
	}

	return &Document{Kind: KindUnknown}, nil
}

// AssessmentUpdates maps a parsed assessment-results document to assessment
// record updates. Only satisfied and not-satisfied findings produce updates;
// other states are skipped. SSP and POA&M documents never mutate local state
// and yield nothing here.
func AssessmentUpdates(doc *Document) map[string]store.ControlAssessment {
	updates := make(map[string]store.ControlAssessment)
	if doc == nil || doc.Kind != KindAssessmentResults {
		return updates
	}
	for _, f := range doc.Findings {
		if f.ControlID == "" {
			continue
		}
		var status string
		switch f.State {
		case "satisfied":
			status = "met"
		case "not-satisfied":
			status = "not-met"
		default:
			continue
		}
		updates[f.ControlID] = store.ControlAssessment{Status: status, OscalImported: true}
	}
	return updates
}

func exportMetadata(title string, now time.Time) map[string]any {
	return map[string]any{
		"title":         title,
		"last-modified": now.UTC().Format(time.RFC3339),
		"version":       "1.0",
		"oscal-version": oscalVersion,
	}
}

// Filename returns the download name for an exported document type.
func Filename(kind Kind, now time.Time) string {
	return fmt.Sprintf("oscal-%s-%s.json", kind, now.UTC().Format("2006-01-02"))
}

// ExportAssessmentResults serializes the assessment record as an OSCAL
// assessment-results document. Controls without an assessed status are
// omitted; every export carries a fresh uuid and last-modified timestamp.
func ExportAssessmentResults(assessment map[string]store.ControlAssessment, now time.Time) ([]byte, error) {
	var findings []map[string]any
	for _, controlID := range sortedKeys(assessment) {
		entry := assessment[controlID]
		if entry.Status == "" || entry.Status == "not-assessed" {
			continue
		}
		var state string
		switch entry.Status {
		case "met":
			state = "satisfied"
		case "not-met":
			state = "not-satisfied"
		case "na":
			state = "not-applicable"
		default:
			state = "other"
		}
		findings = append(findings, map[string]any{
			"uuid":  uuid.NewString(),
			"title": fmt.Sprintf("Assessment of %s", controlID),
			"target": map[string]any{
				"type":      "objective-id",
				"target-id": controlID,
				"status":    map[string]string{"state": state},
			},
		})
	}

	doc := map[string]any{
		string(KindAssessmentResults): map[string]any{
			"uuid":     uuid.NewString(),
			"metadata": exportMetadata("CMMC Self-Assessment Results", now),
			"results": []map[string]any{
				{
					"uuid":     uuid.NewString(),
					"title":    "CMMC Level 2 Self-Assessment",
					"start":    now.UTC().Format(time.RFC3339),
					"findings": findings,
				},
			},
		},
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ExportPOAM serializes the POA&M record as an OSCAL
// plan-of-action-and-milestones document. Entries with neither a weakness nor
// a remediation are omitted.
func ExportPOAM(poam map[string]store.POAMItem, now time.Time) ([]byte, error) {
	var items []map[string]any
	for _, controlID := range sortedKeys(poam) {
		item := poam[controlID]
		if item.Weakness == "" && item.Remediation == "" {
			continue
		}
		description := item.Weakness
		if item.Remediation != "" {
			if description != "" {
				description += ". "
			}
			description += "Remediation: " + item.Remediation
		}
		entry := map[string]any{
			"uuid":        uuid.NewString(),
			"title":       fmt.Sprintf("POA&M item for %s", controlID),
			"description": description,
		}
		if item.ScheduledDate != "" {
			entry["props"] = []map[string]string{
				{"name": "scheduled-completion-date", "value": item.ScheduledDate},
			}
		}
		items = append(items, entry)
	}

	doc := map[string]any{
		string(KindPOAM): map[string]any{
			"uuid":       uuid.NewString(),
			"metadata":   exportMetadata("CMMC Plan of Action and Milestones", now),
			"poam-items": items,
		},
	}
	return json.MarshalIndent(doc, "", "  ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
