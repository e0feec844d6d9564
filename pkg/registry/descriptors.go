package registry

// builtinDescriptors returns the supported provider set. Control identifiers
// are NIST SP 800-171 practice numbers as used by CMMC Level 2.
func builtinDescriptors() []*Descriptor {
	return []*Descriptor{
		{
			ID:                       "entra",
			Name:                     "Microsoft Entra ID",
			Category:                 CategoryIdentity,
			RequiredCredentialFields: []string{"tenantId", "clientId", "clientSecret"},
			Controls: []string{
				"3.1.1", "3.1.2", "3.1.5", "3.5.1", "3.5.2", "3.5.3", "3.5.7",
			},
			Environments: map[string]Environment{
				"commercial": {
					Label:   "Commercial",
					BaseURL: "https://graph.microsoft.com",
					AuthURL: "https://login.microsoftonline.com",
					Scope:   "https://graph.microsoft.com/.default",
				},
				"gcc-high": {
					Label:   "GCC High",
					BaseURL: "https://graph.microsoft.us",
					AuthURL: "https://login.microsoftonline.us",
					Scope:   "https://graph.microsoft.us/.default",
				},
			},
		},
		{
			ID:                       "okta",
			Name:                     "Okta",
			Category:                 CategoryIdentity,
			RequiredCredentialFields: []string{"orgUrl", "apiToken"},
			Controls:                 []string{"3.1.1", "3.1.2", "3.5.1", "3.5.2", "3.5.3"},
		},
		{
			ID:                       "knowbe4",
			Name:                     "KnowBe4",
			Category:                 CategoryTraining,
			RequiredCredentialFields: []string{"apiKey"},
			Controls:                 []string{"3.2.1", "3.2.2", "3.2.3"},
			Environments: map[string]Environment{
				"commercial": {Label: "US", BaseURL: "https://us.api.knowbe4.com"},
				"eu":         {Label: "EU", BaseURL: "https://eu.api.knowbe4.com"},
			},
		},
		{
			ID:                       "tenable",
			Name:                     "Tenable Vulnerability Management",
			Category:                 CategoryVulnerability,
			RequiredCredentialFields: []string{"accessKey", "secretKey"},
			Controls:                 []string{"3.11.2", "3.11.3", "3.14.1"},
			Environments: map[string]Environment{
				"commercial": {Label: "Commercial", BaseURL: "https://cloud.tenable.com"},
				"fedramp":    {Label: "FedRAMP", BaseURL: "https://fedcloud.tenable.com"},
			},
		},
		{
			ID:                       "qualys",
			Name:                     "Qualys VMDR",
			Category:                 CategoryVulnerability,
			RequiredCredentialFields: []string{"username", "password", "apiUrl"},
			Controls:                 []string{"3.11.2", "3.11.3", "3.14.1"},
		},
		{
			ID:                       "rapid7",
			Name:                     "Rapid7 InsightVM",
			Category:                 CategoryVulnerability,
			RequiredCredentialFields: []string{"apiKey", "region"},
			Controls:                 []string{"3.11.2", "3.11.3", "3.14.1"},
		},
		{
			ID:                       "jira",
			Name:                     "Jira",
			Category:                 CategoryTicketing,
			RequiredCredentialFields: []string{"domain", "email", "apiToken"},
			Controls:                 []string{"3.12.2", "3.12.3"},
		},
		{
			ID:                       "servicenow",
			Name:                     "ServiceNow",
			Category:                 CategoryTicketing,
			RequiredCredentialFields: []string{"instance", "username", "password"},
			Controls:                 []string{"3.12.2", "3.12.3"},
		},
		{
			ID:                       "defender",
			Name:                     "Microsoft Defender for Endpoint",
			Category:                 CategoryEndpoint,
			RequiredCredentialFields: []string{"tenantId", "clientId", "clientSecret"},
			Controls:                 []string{"3.14.1", "3.14.2", "3.14.4", "3.14.5", "3.14.6"},
			Environments: map[string]Environment{
				"commercial": {
					Label:   "Commercial",
					BaseURL: "https://api.securitycenter.microsoft.com",
					AuthURL: "https://login.microsoftonline.com",
					Scope:   "https://api.securitycenter.microsoft.com/.default",
				},
				"gcc-high": {
					Label:   "GCC High",
					BaseURL: "https://api-gcc.securitycenter.microsoft.us",
					AuthURL: "https://login.microsoftonline.us",
					Scope:   "https://api-gcc.securitycenter.microsoft.us/.default",
				},
			},
		},
		{
			ID:                       "crowdstrike",
			Name:                     "CrowdStrike Falcon",
			Category:                 CategoryEndpoint,
			RequiredCredentialFields: []string{"clientId", "clientSecret"},
			Controls:                 []string{"3.14.2", "3.14.4", "3.14.5", "3.14.6", "3.14.7"},
			Environments: map[string]Environment{
				"commercial": {Label: "US-1", BaseURL: "https://api.crowdstrike.com"},
				"us-gov":     {Label: "US GovCloud", BaseURL: "https://api.laggar.gcw.crowdstrike.com"},
			},
		},
		{
			ID:                       "sentinelone",
			Name:                     "SentinelOne",
			Category:                 CategoryEndpoint,
			RequiredCredentialFields: []string{"consoleUrl", "apiToken"},
			Controls:                 []string{"3.14.2", "3.14.4", "3.14.5", "3.14.6"},
		},
		{
			ID:                       "s3evidence",
			Name:                     "AWS S3 Evidence Vault",
			Category:                 CategoryStorage,
			RequiredCredentialFields: []string{"accessKeyId", "secretAccessKey", "region", "bucket"},
			Controls:                 []string{"3.3.8", "3.8.9", "3.13.16"},
			Environments: map[string]Environment{
				"commercial": {Label: "Commercial", Region: "us-east-1"},
				"govcloud":   {Label: "GovCloud", Region: "us-gov-west-1"},
			},
		},
	}
}
