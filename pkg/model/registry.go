package model

// Kind identifies a resource kind in the Resource Registry (spec §4.1).
type Kind string

const (
	KindSource   Kind = "Source"
	KindWorkflow Kind = "Workflow"
	KindSink     Kind = "Sink"
)

// RegistryKey is the (kind, namespace, name) identity the Resource Registry
// maps specs by.
type RegistryKey struct {
	Kind      Kind
	Namespace string
	Name      string
}
