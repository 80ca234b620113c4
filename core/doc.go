// Package core contains the QuickBooks connection domain: connection records,
// authorization attempts, the token lifecycle and the orchestration service.
// Storage, provider and transport adapters depend on this package; core must
// not depend on them.
package core
