// Package persistence implements the fallback chain described for the
// Persistence Manager: a durable external store, a single-document file
// store, and an in-memory store, exposed through uniform per-domain
// adapters regardless of which tier is actually backing them.
package persistence

import "context"

// Domain names a persisted collection. The set matches the domains listed
// for the Persistence Manager: judgments, patterns, feedback, knowledge,
// PoJ blocks, triggers, sessions, library cache, psychology, facts, plus
// the autonomy goals/tasks/notifications domains.
type Domain string

const (
	DomainJudgments             Domain = "judgments"
	DomainPatterns              Domain = "patterns"
	DomainFeedback              Domain = "feedback"
	DomainKnowledge             Domain = "knowledge"
	DomainPoJBlocks             Domain = "pojBlocks"
	DomainTriggers              Domain = "triggers"
	DomainSessions              Domain = "sessions"
	DomainLibraryCache          Domain = "libraryCache"
	DomainPsychology            Domain = "psychology"
	DomainFacts                 Domain = "facts"
	DomainAutonomyGoals         Domain = "autonomyGoals"
	DomainAutonomyTasks         Domain = "autonomyTasks"
	DomainAutonomyNotifications Domain = "autonomyNotifications"
)

// AllDomains lists every domain the manager materialises an adapter for.
var AllDomains = []Domain{
	DomainJudgments, DomainPatterns, DomainFeedback, DomainKnowledge,
	DomainPoJBlocks, DomainTriggers, DomainSessions, DomainLibraryCache,
	DomainPsychology, DomainFacts, DomainAutonomyGoals, DomainAutonomyTasks,
	DomainAutonomyNotifications,
}

// Backend names the currently active persistence provider.
type Backend string

const (
	BackendDurable Backend = "durable"
	BackendFile    Backend = "file"
	BackendMemory  Backend = "memory"
)

// Status is one of the four stable health states a subsystem may report.
type Status string

const (
	StatusHealthy          Status = "healthy"
	StatusUnhealthy        Status = "unhealthy"
	StatusConnectionFailed Status = "connection_failed"
	StatusNotConfigured    Status = "not_configured"
)

// SubsystemHealth is the stable shape returned whether or not a backend is
// connected.
type SubsystemHealth struct {
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Document is a domain record. Adapters deal in documents rather than typed
// structs because the concrete schema per domain is out of core scope; an
// "id" key is always present and used as the record's primary key.
type Document = map[string]any

// Store is implemented once per tier (memory, file, durable) and is generic
// across domains: each tier scopes documents by domain internally. Get and
// List return a nil value rather than raising when the record or domain is
// empty, per the adapter absence contract.
type Store interface {
	Put(ctx context.Context, domain Domain, id string, doc Document) error
	Get(ctx context.Context, domain Domain, id string) (Document, error)
	Delete(ctx context.Context, domain Domain, id string) error
	List(ctx context.Context, domain Domain) ([]Document, error)
	Search(ctx context.Context, domain Domain, predicate func(Document) bool) ([]Document, error)
	Close(ctx context.Context) error
}
