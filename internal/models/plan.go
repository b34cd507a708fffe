package models

// RestorationPlan describes the single write a cycle may perform: a new
// commit on top of ExpectedHead whose tree is TargetSHA's tree with every
// reference entry overlaid. The overlay always carries the current reference
// content, so a canonical update newer than the target commit is honored.
type RestorationPlan struct {
	TargetSHA    string
	ExpectedHead string
	Overlay      []ReferenceEntry
	Violations   []Violation
}

// AlertRecord is the payload handed to the issue tracker. DedupKey is stable
// for a given (triggering head, violated path set) so repeated cycles that
// observe the same incident raise at most one open alert.
type AlertRecord struct {
	DedupKey string
	Title    string
	Body     string
	Labels   []string
}
