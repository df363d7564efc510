package secscan

import (
	"context"
	"time"
)

// Scan types a policy may require.
const (
	ScanTypeSast           = "sast"
	ScanTypeDependency     = "dependency"
	ScanTypeSecrets        = "secrets"
	ScanTypeInfrastructure = "infrastructure"
	ScanTypeContainer      = "container"
)

// Target describes what a scanner should look at.
type Target struct {
	ProjectPath   string
	RepositoryUrl string
	Branch        string
	Timeout       time.Duration
	MaxRetries    int
}

// Finding is one raw scanner result before persistence.
type Finding struct {
	Severity    string
	Title       string
	Description string
	Location    string
}

// Scanner is the pluggable scan collaborator, one implementation per scan
// type behind a single interface. A scan error does not abort policy
// evaluation; the gate records it as a synthetic critical finding so a
// scanner outage cannot silently pass unscanned code.
type Scanner interface {
	Scan(ctx context.Context, scanType string, target Target) ([]Finding, error)
}

// ScannerFunc adapts a function to the Scanner interface.
type ScannerFunc func(ctx context.Context, scanType string, target Target) ([]Finding, error)

func (f ScannerFunc) Scan(ctx context.Context, scanType string, target Target) ([]Finding, error) {
	return f(ctx, scanType, target)
}

// noScanner backs the gate when no scanner backend is wired into the
// process. It fails every required scan, so a policy that demands
// scanning surfaces a synthetic critical finding instead of silently
// passing unscanned code.
func noScanner() Scanner {
	return ScannerFunc(func(_ context.Context, scanType string, _ Target) ([]Finding, error) {
		return nil, ErrGate.New("no scanner backend configured for %s scan", scanType)
	})
}
