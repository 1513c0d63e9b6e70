// Package core contains the connector domain types, the transient store
// contracts, and the authorization flow orchestration. Provider and storage
// adapters depend on this package; core must not depend on them.
package core
