package errors

// FetchKindInfo contains metadata about a fetch failure kind.
type FetchKindInfo struct {
	Kind            FetchKind
	Retryable       bool
	Description     string
	SuggestedAction string
}

// FetchKindRegistry maps fetch failure kinds to their metadata.
var FetchKindRegistry = map[FetchKind]FetchKindInfo{
	FetchTimeout: {
		Kind:            FetchTimeout,
		Retryable:       true,
		Description:     "Portal did not answer within the request timeout",
		SuggestedAction: "Raise portal.timeout or resume the run later: judgeroute extract --resume latest",
	},
	FetchHTTPStatus: {
		Kind:            FetchHTTPStatus,
		Retryable:       true,
		Description:     "Portal answered with a non-2xx status",
		SuggestedAction: "Check the portal in a browser; resume the run once it answers normally",
	},
	FetchTransport: {
		Kind:            FetchTransport,
		Retryable:       true,
		Description:     "Network error reaching the portal",
		SuggestedAction: "Check connectivity and DNS for portal.base_url",
	},
	FetchBlocked: {
		Kind:            FetchBlocked,
		Retryable:       false,
		Description:     "Portal served a captcha challenge",
		SuggestedAction: "Stop the run, wait before resuming, and raise pacing.min_delay",
	},
	FetchRetriesExhausted: {
		Kind:            FetchRetriesExhausted,
		Retryable:       false,
		Description:     "All attempts for a request failed",
		SuggestedAction: "Resolve the record manually: judgeroute override <run-id> --interactive",
	},
}

// IsRetryable returns true if the given kind represents a transient failure.
func IsRetryable(kind FetchKind) bool {
	if info, ok := FetchKindRegistry[kind]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested operator action for kind.
func GetSuggestedAction(kind FetchKind) string {
	if info, ok := FetchKindRegistry[kind]; ok {
		return info.SuggestedAction
	}
	return "Check the run log: judgeroute status <run-id>"
}

// GetDescription returns the human-readable description for kind.
func GetDescription(kind FetchKind) string {
	if info, ok := FetchKindRegistry[kind]; ok {
		return info.Description
	}
	return "Unknown error"
}
