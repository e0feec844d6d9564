// Package evidence defines the normalized shape of synced provider data and
// the index that makes it queryable by CMMC practice identifier.
package evidence

import (
	"math"
	"time"
)

// SyncRecord is the durable result of one successful provider sync. A sync
// always replaces the provider's prior record wholesale; records are never
// partially updated.
type SyncRecord struct {
	ProviderID string    `json:"providerId"`
	LastSync   time.Time `json:"lastSync"`
	Stats      Stats     `json:"stats"`
	Details    Details   `json:"details"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// Stats carries the provider's normalized summary. Exactly one category
// section is populated per provider; the rest stay nil so callers can
// distinguish "not applicable" from "zero".
type Stats struct {
	Identity      *IdentityStats      `json:"identity,omitempty"`
	Endpoint      *EndpointStats      `json:"endpoint,omitempty"`
	Vulnerability *VulnerabilityStats `json:"vulnerability,omitempty"`
	Training      *TrainingStats      `json:"training,omitempty"`
	Ticketing     *TicketingStats     `json:"ticketing,omitempty"`
	Storage       *StorageStats       `json:"storage,omitempty"`
}

// IdentityStats summarizes an identity provider's directory posture.
type IdentityStats struct {
	TotalUsers     int `json:"totalUsers"`
	EnabledUsers   int `json:"enabledUsers"`
	MFARegistered  int `json:"mfaRegistered"`
	MFARate        int `json:"mfaRate"`
	ActivePolicies int `json:"activePolicies"`
}

// EndpointStats summarizes device fleet health from an EDR/MDM provider.
type EndpointStats struct {
	TotalDevices     int `json:"totalDevices"`
	CompliantDevices int `json:"compliantDevices"`
	ComplianceRate   int `json:"complianceRate"`
}

// VulnerabilityStats carries per-severity open finding counts. Each tier is
// fetched independently and defaults to 0 on its own fetch failure.
type VulnerabilityStats struct {
	Critical  int `json:"critical"`
	High      int `json:"high"`
	Medium    int `json:"medium"`
	Low       int `json:"low"`
	ScanCount int `json:"scanCount"`
}

// TrainingStats summarizes security-awareness training. PhishProneRate is nil
// (not zero) when no phishing campaigns exist; downstream display must keep
// the two distinct.
type TrainingStats struct {
	Enrollments    int      `json:"enrollments"`
	Completed      int      `json:"completed"`
	CompletionRate int      `json:"completionRate"`
	CampaignCount  int      `json:"campaignCount"`
	PhishProneRate *float64 `json:"phishProneRate,omitempty"`
}

// TicketingStats summarizes the compliance queue of a ticketing provider.
type TicketingStats struct {
	OpenItems  int `json:"openItems"`
	TotalItems int `json:"totalItems"`
}

// StorageStats summarizes an evidence document store.
type StorageStats struct {
	ObjectCount int   `json:"objectCount"`
	TotalBytes  int64 `json:"totalBytes"`
	Encrypted   bool  `json:"encrypted"`
}

// Details holds bounded record lists for display. Adapters truncate each list
// to MaxDetailRecords.
type Details struct {
	Users     []UserSummary     `json:"users,omitempty"`
	Devices   []DeviceSummary   `json:"devices,omitempty"`
	Scans     []ScanSummary     `json:"scans,omitempty"`
	Campaigns []CampaignSummary `json:"campaigns,omitempty"`
	Tickets   []TicketSummary   `json:"tickets,omitempty"`
	Objects   []ObjectSummary   `json:"objects,omitempty"`
}

// MaxDetailRecords bounds every detail list to a UI-sized page.
const MaxDetailRecords = 100

// UserSummary is one directory user row.
type UserSummary struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Enabled bool   `json:"enabled"`
	MFA     bool   `json:"mfa"`
}

// DeviceSummary is one managed device row.
type DeviceSummary struct {
	Name      string `json:"name"`
	OS        string `json:"os,omitempty"`
	Compliant bool   `json:"compliant"`
}

// ScanSummary is one vulnerability scan row.
type ScanSummary struct {
	Name     string `json:"name"`
	Status   string `json:"status,omitempty"`
	LastSeen string `json:"lastSeen,omitempty"`
}

// CampaignSummary is one phishing test campaign row.
type CampaignSummary struct {
	Name           string  `json:"name"`
	PhishPronePct  float64 `json:"phishPronePct"`
	StartedAt      string  `json:"startedAt,omitempty"`
	RecipientCount int     `json:"recipientCount,omitempty"`
}

// TicketSummary is one compliance ticket row.
type TicketSummary struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
	Status  string `json:"status,omitempty"`
}

// ObjectSummary is one stored evidence object row.
type ObjectSummary struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified,omitempty"`
}

// Rate computes part/total as a whole percentage, rounded to the nearest
// integer and clamped to the 0..100 range. A zero total yields 0, never NaN.
func Rate(part, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(part) / float64(total) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
