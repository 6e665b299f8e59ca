package watcher

import "k8s.io/client-go/dynamic"

// dynamicClient is an alias for the full dynamic.Interface the watcher uses.
type dynamicClient = dynamic.Interface
