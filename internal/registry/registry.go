// Package registry is the Ownership Registry (spec §3.1, §4.1): the
// single source of truth for which service owns which table and which
// service produces/consumes which topic. It is loaded once at service
// startup from a YAML document (gopkg.in/yaml.v3, cmd/platformctl
// shares the same loader) and consulted on every query and RPC by
// internal/boundary.
package registry

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ServiceId names one domain service ("content", "feed", "search", ...).
type ServiceId string

// AccessKind distinguishes a read from a write for is_allowed checks.
type AccessKind string

const (
	AccessRead  AccessKind = "read"
	AccessWrite AccessKind = "write"
)

// StartPosition is the initial read position a SubscriptionContract
// takes when it has no stored offset yet.
type StartPosition string

const (
	StartEarliest     StartPosition = "earliest"
	StartLatest       StartPosition = "latest"
	StartStoredOffset StartPosition = "stored-offset"
)

// TopicContract describes one topic: its single producer, the ordered
// kinds it carries, and its partitioning/retention policy (spec §3.1).
type TopicContract struct {
	Topic          string   `yaml:"topic"`
	Producer       ServiceId `yaml:"producer"`
	EventKinds     []string `yaml:"event_kinds"`
	SchemaVersion  int      `yaml:"schema_version"`
	Partitions     int      `yaml:"partitions"`
	RetentionDays  int      `yaml:"retention_days"`
}

// SubscriptionContract describes one (ServiceId, topic) consumer.
type SubscriptionContract struct {
	Service       ServiceId     `yaml:"service"`
	Topic         string        `yaml:"topic"`
	Group         string        `yaml:"group"`
	StartPosition StartPosition `yaml:"start_position"`
	MaxInFlight   int           `yaml:"max_in_flight"`
	DeadLetter    string        `yaml:"dead_letter_topic"`
}

// document is the on-disk YAML shape loaded by Load.
type document struct {
	Tables struct {
		Owners map[string]string `yaml:"owners"`
	} `yaml:"tables"`
	Topics        []TopicContract        `yaml:"topics"`
	Subscriptions []SubscriptionContract `yaml:"subscriptions"`
}

// CycleError reports a cycle found in the synchronous dependency graph
// (spec §4.1, §4.8): RPC caller/callee edges must form a DAG.
type CycleError struct {
	Path []ServiceId
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("registry: cyclic synchronous dependency: %v", e.Path)
}

// UnregisteredTableError is raised at boot when a service declares a
// table the registry does not know about.
type UnregisteredTableError struct {
	Table string
}

func (e *UnregisteredTableError) Error() string {
	return fmt.Sprintf("registry: table %q has no declared owner", e.Table)
}

// OwnerMismatchError is raised at boot when a service's declared tables
// are registered under a different ServiceId (spec §4.1 boot-time check).
type OwnerMismatchError struct {
	Table string
	Want  ServiceId
	Got   ServiceId
}

func (e *OwnerMismatchError) Error() string {
	return fmt.Sprintf("registry: table %q is owned by %q, not %q", e.Table, e.Want, e.Got)
}

// Registry is the process-wide, read-only configuration built by Load.
// It is safe for concurrent reads from many goroutines; it is never
// mutated after Load returns.
type Registry struct {
	tableOwners   map[string]ServiceId
	topics        map[string]TopicContract
	subscriptions map[ServiceId][]SubscriptionContract
	consumersOf   map[string][]ServiceId
}

// Load parses a registry document and validates the invariants spec §3.1
// requires: exactly one owner per table, exactly one producer per topic,
// and non-decreasing schema versions are the caller's responsibility to
// maintain across revisions (Load only checks the single document given).
func Load(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("registry: parse: %w", err)
	}

	reg := &Registry{
		tableOwners:   make(map[string]ServiceId, len(doc.Tables.Owners)),
		topics:        make(map[string]TopicContract, len(doc.Topics)),
		subscriptions: make(map[ServiceId][]SubscriptionContract),
		consumersOf:   make(map[string][]ServiceId),
	}

	for table, owner := range doc.Tables.Owners {
		reg.tableOwners[table] = ServiceId(owner)
	}

	for _, t := range doc.Topics {
		if _, dup := reg.topics[t.Topic]; dup {
			return nil, fmt.Errorf("registry: topic %q declared more than once", t.Topic)
		}

		reg.topics[t.Topic] = t
	}

	for _, s := range doc.Subscriptions {
		if _, ok := reg.topics[s.Topic]; !ok {
			return nil, fmt.Errorf("registry: subscription for unknown topic %q", s.Topic)
		}

		reg.subscriptions[s.Service] = append(reg.subscriptions[s.Service], s)
		reg.consumersOf[s.Topic] = append(reg.consumersOf[s.Topic], s.Service)
	}

	return reg, nil
}

// OwnerOf is the total function from spec §4.1: every call to a
// registered table returns its owner; an unregistered table is a
// configuration error the caller should treat as fatal at startup.
func (r *Registry) OwnerOf(table string) (ServiceId, error) {
	owner, ok := r.tableOwners[table]
	if !ok {
		return "", &UnregisteredTableError{Table: table}
	}

	return owner, nil
}

// ProducerOf returns the single service registered to produce topic.
func (r *Registry) ProducerOf(topic string) (ServiceId, error) {
	t, ok := r.topics[topic]
	if !ok {
		return "", fmt.Errorf("registry: unknown topic %q", topic)
	}

	return t.Producer, nil
}

// ConsumersOf returns every service subscribed to topic.
func (r *Registry) ConsumersOf(topic string) []ServiceId {
	return r.consumersOf[topic]
}

// Topics returns every topic name the registry knows about, for
// operator tooling (cmd/platformctl `registry inspect`) that wants to
// walk the whole contract set rather than look up one topic at a time.
func (r *Registry) Topics() []string {
	topics := make([]string, 0, len(r.topics))
	for name := range r.topics {
		topics = append(topics, name)
	}

	return topics
}

// TopicContractFor returns the full contract for topic.
func (r *Registry) TopicContractFor(topic string) (TopicContract, bool) {
	t, ok := r.topics[topic]
	return t, ok
}

// SubscriptionsFor returns every subscription declared for service.
func (r *Registry) SubscriptionsFor(service ServiceId) []SubscriptionContract {
	return r.subscriptions[service]
}

// IsAllowed implements spec §4.1's access rule: a service may read or
// write a table only if it is that table's registered owner.
func (r *Registry) IsAllowed(service ServiceId, table string, _ AccessKind) bool {
	owner, ok := r.tableOwners[table]
	return ok && owner == service
}

// VerifyOwnership is the boot-time check from spec §4.1: each service
// passes the tables it believes it owns; a missing or mismatched entry
// is a fatal configuration error.
func (r *Registry) VerifyOwnership(service ServiceId, declaredTables []string) error {
	for _, table := range declaredTables {
		owner, ok := r.tableOwners[table]
		if !ok {
			return &UnregisteredTableError{Table: table}
		}

		if owner != service {
			return &OwnerMismatchError{Table: table, Want: owner, Got: service}
		}
	}

	return nil
}

// DependencyGraph is the process-level synchronous (RPC) dependency
// graph boundary checks walk for cycles (spec §4.8); event edges are
// deliberately excluded; they are allowed to cycle.
type DependencyGraph struct {
	edges map[ServiceId][]ServiceId
}

// NewDependencyGraph builds an empty synchronous-call graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{edges: make(map[ServiceId][]ServiceId)}
}

// AddCall records that caller synchronously invokes callee via the RPC
// pool.
func (g *DependencyGraph) AddCall(caller, callee ServiceId) {
	g.edges[caller] = append(g.edges[caller], callee)
}

// VerifyAcyclic walks the synchronous edges with depth-first search and
// returns a CycleError naming the cycle's path if one exists.
func (g *DependencyGraph) VerifyAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[ServiceId]int)
	path := make([]ServiceId, 0, len(g.edges))

	var visit func(n ServiceId) error
	visit = func(n ServiceId) error {
		color[n] = gray
		path = append(path, n)

		for _, next := range g.edges[n] {
			switch color[next] {
			case white:
				if err := visit(next); err != nil {
					return err
				}
			case gray:
				cyclePath := append(append([]ServiceId{}, path...), next)
				return &CycleError{Path: cyclePath}
			}
		}

		path = path[:len(path)-1]
		color[n] = black

		return nil
	}

	for n := range g.edges {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}

	return nil
}
