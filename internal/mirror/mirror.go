// Package mirror copies stored transactions to advisory destinations
// (spreadsheet, analytics warehouse, Notion). Mirrors are best effort and
// never gate the user reply.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/dvloznov/wa-finance/internal/logger"
	"github.com/dvloznov/wa-finance/internal/metrics"
)

// Appender writes one transaction to a destination.
type Appender interface {
	AppendTransaction(ctx context.Context, tx *domain.Transaction) error
}

// Target is a named Appender.
type Target struct {
	Name     string
	Appender Appender
}

// Fanout appends to every target in order. All targets are attempted even
// when an earlier one fails.
type Fanout struct {
	targets []Target
}

// NewFanout creates a Fanout over targets.
func NewFanout(targets ...Target) *Fanout {
	return &Fanout{targets: targets}
}

// Len returns the number of targets.
func (f *Fanout) Len() int {
	return len(f.targets)
}

// Names returns the target names.
func (f *Fanout) Names() []string {
	names := make([]string, 0, len(f.targets))
	for _, t := range f.targets {
		names = append(names, t.Name)
	}
	return names
}

// AppendTransaction implements router.Mirror.
func (f *Fanout) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	log := logger.FromContext(ctx)

	var errs []error
	for _, t := range f.targets {
		if err := t.Appender.AppendTransaction(ctx, tx); err != nil {
			metrics.RecordMirrorFailure(t.Name)
			log.Warn().Err(err).Str("mirror", t.Name).Msg("mirror append failed")
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		log.Debug().Str("mirror", t.Name).Msg("mirror append ok")
	}
	return errors.Join(errs...)
}
