package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/pawl/pkg/ledger"
)

var (
	// ErrEmptySubjectID is returned when the subject id is empty.
	ErrEmptySubjectID = errors.New("audit: subject_id must not be empty")
	// ErrLedgerNotConfigured is returned when export runs without a ledger.
	ErrLedgerNotConfigured = errors.New("audit: ledger not configured (fail-closed)")
)

// Pack describes one generated evidence pack. The zip bytes live in the
// archive under Ref; Signature is the subject keyring's signature over the
// zip bytes and verifies against PublicKey.
type Pack struct {
	SubjectID   string    `json:"subject_id"`
	Ref         string    `json:"ref"`
	Checksum    string    `json:"checksum"`
	Signature   []byte    `json:"signature"`
	PublicKey   []byte    `json:"public_key"`
	EntryCount  int       `json:"entry_count"`
	EventCount  int       `json:"event_count"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Exporter assembles, signs, and archives per-subject evidence packs.
type Exporter struct {
	led     *ledger.Ledger
	log     *Log
	keys    *Keyring
	archive Archive
	clock   func() time.Time
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithExportClock overrides the time source.
func WithExportClock(clock func() time.Time) ExporterOption {
	return func(e *Exporter) { e.clock = clock }
}

// NewExporter wires the evidence sources together.
func NewExporter(led *ledger.Ledger, log *Log, keys *Keyring, archive Archive, opts ...ExporterOption) *Exporter {
	e := &Exporter{led: led, log: log, keys: keys, archive: archive, clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GeneratePack builds a zip holding the subject's ledger slice, its
// decision events, and a manifest; signs the zip with the subject-derived
// key; and archives it.
func (e *Exporter) GeneratePack(ctx context.Context, subjectID string) (*Pack, error) {
	if subjectID == "" {
		return nil, ErrEmptySubjectID
	}
	if e.led == nil {
		return nil, ErrLedgerNotConfigured
	}

	var entries []ledger.Entry
	for _, entry := range e.led.Entries() {
		if entry.SubjectID == subjectID {
			entries = append(entries, entry)
		}
	}

	var events []Event
	if e.log != nil {
		events = e.log.EventsFor(subjectID)
	}

	now := e.clock().UTC()
	manifest := map[string]any{
		"subject_id":   subjectID,
		"generated_at": now,
		"entry_count":  len(entries),
		"event_count":  len(events),
		"chain_head":   e.led.Head(),
	}

	zipBytes, err := buildZip(entries, events, manifest, subjectID, now)
	if err != nil {
		return nil, err
	}

	ref, checksum := contentRef(zipBytes)

	keys := e.keys
	if keys == nil {
		keys = NewKeyring(nil)
	}
	subjectKeys, err := keys.DeriveForSubject(subjectID)
	if err != nil {
		return nil, err
	}
	sig, err := subjectKeys.SignBytes(zipBytes)
	if err != nil {
		return nil, fmt.Errorf("audit: sign pack: %w", err)
	}

	if e.archive != nil {
		if _, err := e.archive.Put(ctx, zipBytes); err != nil {
			return nil, fmt.Errorf("audit: archive pack: %w", err)
		}
	}

	return &Pack{
		SubjectID:   subjectID,
		Ref:         ref,
		Checksum:    checksum,
		Signature:   sig,
		PublicKey:   subjectKeys.PublicKey(),
		EntryCount:  len(entries),
		EventCount:  len(events),
		GeneratedAt: now,
	}, nil
}

func buildZip(entries []ledger.Entry, events []Event, manifest map[string]any, subjectID string, now time.Time) ([]byte, error) {
	entriesJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: marshal ledger slice: %w", err)
	}
	eventsJSON, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: marshal events: %w", err)
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	files := []struct {
		name string
		data []byte
	}{
		{"ledger.json", entriesJSON},
		{"decisions.json", eventsJSON},
		{"manifest.json", manifestJSON},
	}
	for _, file := range files {
		f, err := w.Create(file.name)
		if err != nil {
			return nil, fmt.Errorf("audit: zip %s: %w", file.name, err)
		}
		if _, err := f.Write(file.data); err != nil {
			return nil, fmt.Errorf("audit: zip %s: %w", file.name, err)
		}
	}

	f, err := w.Create("README.txt")
	if err != nil {
		return nil, fmt.Errorf("audit: zip README.txt: %w", err)
	}
	_, _ = fmt.Fprintf(f, "Evidence pack for subject %s\nGenerated at %s\n", subjectID, now.Format(time.RFC3339))

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("audit: close zip: %w", err)
	}
	return buf.Bytes(), nil
}
