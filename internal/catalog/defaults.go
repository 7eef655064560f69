package catalog

// DefaultPatterns returns the builtin pattern set used when no backing store
// is configured, and as the seed for a freshly provisioned store.
//
// Order within the slice carries no meaning; overlap between matches is
// resolved by the classifier, not by pattern order.
func DefaultPatterns() []PatternDefinition {
	return []PatternDefinition{
		{
			ID:       "ssn",
			Name:     "US Social Security Number",
			Regex:    `\b[0-9]{3}[-\s]?[0-9]{2}[-\s]?[0-9]{4}\b`,
			DataType: "ssn",
			Severity: "showstopper",
			Category: "government_id",
		},
		{
			ID:       "credit_card",
			Name:     "Credit Card Number",
			Regex:    `\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`,
			DataType: "credit_card",
			Severity: "showstopper",
			Category: "financial",
		},
		{
			ID:                  "email",
			Name:                "Email Address",
			Regex:               `\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`,
			DataType:            "email",
			Severity:            "pseudonymizer",
			ReplacementTemplate: "[EMAIL_REDACTED]",
			Category:            "contact",
		},
		{
			ID:                  "phone",
			Name:                "Phone Number",
			Regex:               `\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`,
			DataType:            "phone",
			Severity:            "pseudonymizer",
			ReplacementTemplate: "[PHONE_REDACTED]",
			Category:            "contact",
		},
		{
			ID:                  "ipv4",
			Name:                "IPv4 Address",
			Regex:               `\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`,
			DataType:            "ip_address",
			Severity:            "pseudonymizer",
			ReplacementTemplate: "[IP_REDACTED]",
			Category:            "network",
		},
		{
			ID:                  "aws_access_key",
			Name:                "AWS Access Key ID",
			Regex:               `\bAKIA[0-9A-Z]{16}\b`,
			DataType:            "aws_access_key",
			Severity:            "pseudonymizer",
			ReplacementTemplate: "[AWS_KEY_REDACTED]",
			Category:            "credential",
		},
		{
			ID:                  "api_key",
			Name:                "Generic API Key",
			Regex:               `\bsk-[A-Za-z0-9]{20,}\b`,
			DataType:            "api_key",
			Severity:            "pseudonymizer",
			ReplacementTemplate: "[API_KEY_REDACTED]",
			Category:            "credential",
		},
		{
			ID:                  "jwt",
			Name:                "JWT Token",
			Regex:               `\beyJ[a-zA-Z0-9_\-]+\.eyJ[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+\b`,
			DataType:            "jwt",
			Severity:            "pseudonymizer",
			ReplacementTemplate: "[JWT_REDACTED]",
			Category:            "credential",
		},
		{
			ID:       "street_address",
			Name:     "US Street Address",
			Regex:    `\b\d{1,5}\s+[A-Z][a-zA-Z]*(?:\s[A-Z][a-zA-Z]*)?\s(?:Street|St|Avenue|Ave|Boulevard|Blvd|Drive|Dr|Lane|Ln|Road|Rd|Court|Ct)\.?\b`,
			DataType: "street_address",
			Severity: "flagger",
			Category: "contact",
		},
	}
}
