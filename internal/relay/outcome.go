package relay

// Outcome is the explicit result of a boundary-crossing relay call. Every
// delivery path ends in exactly one of these; the caller decides whether to
// log and continue, but the decision is visible instead of buried in a
// swallowed error.
type Outcome int

const (
	// OutcomeDelivered means the ingestion endpoint accepted the activity.
	OutcomeDelivered Outcome = iota

	// OutcomeSkippedNoKey means no content key could be resolved. Normal and
	// expected for pages without tracked media.
	OutcomeSkippedNoKey

	// OutcomeSkippedNoBaseURL means the relay has no ingestion endpoint
	// configured.
	OutcomeSkippedNoBaseURL

	// OutcomeRejected means the server refused the activity with a client
	// error. Retrying cannot help.
	OutcomeRejected

	// OutcomeDeadLettered means every delivery attempt failed and the
	// activity went to the dead-letter log.
	OutcomeDeadLettered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeSkippedNoKey:
		return "skipped_no_key"
	case OutcomeSkippedNoBaseURL:
		return "skipped_no_base_url"
	case OutcomeRejected:
		return "rejected"
	case OutcomeDeadLettered:
		return "dead_lettered"
	default:
		return "unknown"
	}
}
