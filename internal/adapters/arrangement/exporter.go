// Package arrangement exports the stowage layout and return manifests to blob
// storage.
package arrangement

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"stowage/internal/blob"
	"stowage/internal/core"
	"stowage/internal/events"
	"stowage/pkg/domain"
)

// Key prefixes under which exports are written.
const (
	ArrangementPrefix = "arrangements/"
	ManifestPrefix    = "manifests/"
)

// Header is the first row of an arrangement CSV.
var Header = []string{"Item ID", "Container ID", "Coordinates (W1,D1,H1)", "(W2,D2,H2)"}

// Exporter writes exports to a blob store and announces them on a sink.
type Exporter struct {
	store blob.Store
	sink  events.Sink
	now   func() time.Time
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithSink publishes an export event for every document written.
func WithSink(sink events.Sink) Option {
	return func(e *Exporter) { e.sink = sink }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExporter returns an exporter writing to store.
func NewExporter(store blob.Store, opts ...Option) *Exporter {
	e := &Exporter{store: store, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WriteCSV writes one row per placement, ordered by container then item.
func WriteCSV(w io.Writer, placements []core.Placement) error {
	rows := append([]core.Placement(nil), placements...)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ContainerID != rows[j].ContainerID {
			return rows[i].ContainerID < rows[j].ContainerID
		}
		return rows[i].ItemID < rows[j].ItemID
	})
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, p := range rows {
		if err := cw.Write([]string{p.ItemID, p.ContainerID, p.Position.String(), p.End().String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (e *Exporter) key(prefix, name string) string {
	id := ulid.MustNew(ulid.Timestamp(e.now()), ulid.DefaultEntropy())
	return fmt.Sprintf("%s%s-%s", prefix, name, strings.ToLower(id.String()))
}

// ExportArrangement writes the placements of state as CSV. The key carries
// the simulated day and a time-ordered suffix.
func (e *Exporter) ExportArrangement(ctx context.Context, state core.State) (blob.Info, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, state.Placements); err != nil {
		return blob.Info{}, fmt.Errorf("encode arrangement: %w", err)
	}
	key := e.key(ArrangementPrefix, fmt.Sprintf("day-%04d", state.Day)) + ".csv"
	info, err := e.store.Put(ctx, key, &buf, blob.PutOptions{
		ContentType: "text/csv",
		Metadata: map[string]string{
			"day":        fmt.Sprint(state.Day),
			"placements": fmt.Sprint(len(state.Placements)),
		},
	})
	if err != nil {
		return blob.Info{}, err
	}
	return info, e.announce(ctx, state.Day, "", info)
}

// ExportManifest writes a return manifest as indented JSON.
func (e *Exporter) ExportManifest(ctx context.Context, m core.ReturnManifest) (blob.Info, error) {
	if m.UndockingContainerID == "" {
		return blob.Info{}, fmt.Errorf("manifest has no undocking container")
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode manifest: %w", err)
	}
	key := e.key(ManifestPrefix, m.UndockingContainerID) + ".json"
	info, err := e.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"undocking_container": m.UndockingContainerID,
			"items":               fmt.Sprint(len(m.Items)),
		},
	})
	if err != nil {
		return blob.Info{}, err
	}
	return info, e.announce(ctx, m.UndockingDay, m.UndockingContainerID, info)
}

// List returns exports under prefix, newest last.
func (e *Exporter) List(ctx context.Context, prefix string) ([]blob.Info, error) {
	return e.store.List(ctx, prefix)
}

func (e *Exporter) announce(ctx context.Context, day int, container string, info blob.Info) error {
	if e.sink == nil {
		return nil
	}
	ev := domain.Event{
		ID:          ulid.Make().String(),
		Type:        domain.EventExport,
		UserID:      core.UserIDFromContext(ctx),
		ToContainer: container,
		Reason:      info.Key,
		Day:         day,
		Timestamp:   e.now(),
	}
	if err := e.sink.Publish(ctx, ev); err != nil {
		return fmt.Errorf("announce export %s: %w", info.Key, err)
	}
	return nil
}
