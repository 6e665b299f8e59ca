package resource

import "k8s.io/client-go/dynamic"

// dynamicClient is an alias for the full dynamic.Interface the facades
// use; it exists so tests can substitute a fake without importing the
// whole client-go dynamic fake package at every call site.
type dynamicClient = dynamic.Interface
