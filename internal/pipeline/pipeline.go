// Package pipeline composes fetch, normalize, upload, anchor and commit into
// the end-to-end snapshot job.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/hitcastor/snapshotter/internal/chart"
	"github.com/hitcastor/snapshotter/internal/hash"
	"github.com/hitcastor/snapshotter/internal/ledger"
	"github.com/hitcastor/snapshotter/internal/store"
)

const (
	// CSVFilename and JSONFilename name the two artifacts under the
	// snapshots/<date>/<region>/ key prefix.
	CSVFilename  = "top100.csv"
	JSONFilename = "top100.json"
)

// Job is the input contract of one pipeline invocation.
type Job struct {
	DateUTC string `json:"dateUtc"`
	Region  string `json:"region"`
	Force   bool   `json:"force,omitempty"`
}

func (j Job) String() string {
	return fmt.Sprintf("%s/%s force=%v", j.DateUTC, j.Region, j.Force)
}

// State names a step of the pipeline. Failures are wrapped with the state
// they originated in.
type State string

const (
	StateInit          State = "init"
	StateCheckExisting State = "check_existing"
	StateFetching      State = "fetching"
	StateNormalizing   State = "normalizing"
	StateUploadingCSV  State = "uploading_csv"
	StateUploadingJSON State = "uploading_json"
	StateAnchoring     State = "anchoring"
	StateCommitting    State = "committing"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Fetcher retrieves raw chart bytes for a (date, region).
type Fetcher interface {
	Fetch(ctx context.Context, dateUTC, region string) ([]byte, error)
	ChartURL(dateUTC, region string) string
}

// Anchorer pins the normalized artifact to a content-addressed network.
type Anchorer interface {
	Enabled() bool
	Anchor(ctx context.Context, data []byte) (string, error)
}

// Ledger is the authoritative snapshot metadata store.
type Ledger interface {
	Upsert(ctx context.Context, rec ledger.Record) (*ledger.Snapshot, error)
	Get(ctx context.Context, dateUTC, region string) (*ledger.Snapshot, error)
}

// Options tunes orchestration behavior.
type Options struct {
	// VerifyExisting re-reads an already-stored artifact in the skip path
	// and compares digests instead of trusting the locally recomputed hash.
	// A mismatch triggers a re-upload.
	VerifyExisting bool
}

// Pipeline runs snapshot jobs. All collaborators are constructor-injected
// so tests can substitute doubles.
type Pipeline struct {
	fetcher  Fetcher
	store    store.Store
	anchorer Anchorer
	ledger   Ledger
	opts     Options
}

func New(fetcher Fetcher, st store.Store, anchorer Anchorer, led Ledger, opts Options) *Pipeline {
	return &Pipeline{
		fetcher:  fetcher,
		store:    st,
		anchorer: anchorer,
		ledger:   led,
		opts:     opts,
	}
}

// Result reports the outcome of a completed run.
type Result struct {
	Snapshot *ledger.Snapshot
	State    State
	// Skipped is true when an existing snapshot short-circuited the run
	// before any network or storage I/O.
	Skipped bool
}

// Run executes one snapshot job. A failed run never writes the ledger;
// partial artifact uploads are safe because uploads are idempotent by
// content. Only the ledger upsert commits the snapshot.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Result, error) {
	log.Printf("snapshot job %s: starting", job)

	if !job.Force {
		existing, err := p.ledger.Get(ctx, job.DateUTC, job.Region)
		if err != nil {
			return nil, fail(StateCheckExisting, err)
		}
		if existing != nil {
			log.Printf("snapshot job %s: snapshot already exists, skipping", job)
			return &Result{Snapshot: existing, State: StateDone, Skipped: true}, nil
		}
	}

	raw, err := p.fetcher.Fetch(ctx, job.DateUTC, job.Region)
	if err != nil {
		return nil, fail(StateFetching, err)
	}
	sourceURL := p.fetcher.ChartURL(job.DateUTC, job.Region)

	artifact, csvHash, err := chart.Normalize(raw, job.DateUTC, job.Region, sourceURL)
	if err != nil {
		return nil, fail(StateNormalizing, err)
	}
	jsonBytes, err := artifact.Encode()
	if err != nil {
		return nil, fail(StateNormalizing, err)
	}
	jsonHash := hash.SHA256(jsonBytes)

	csvKey := store.ObjectKey(job.DateUTC, job.Region, CSVFilename)
	csvRes, err := p.uploadArtifact(ctx, csvKey, raw, "text/csv", csvHash, job.Force)
	if err != nil {
		return nil, fail(StateUploadingCSV, err)
	}

	jsonKey := store.ObjectKey(job.DateUTC, job.Region, JSONFilename)
	jsonRes, err := p.uploadArtifact(ctx, jsonKey, jsonBytes, "application/json", jsonHash, job.Force)
	if err != nil {
		return nil, fail(StateUploadingJSON, err)
	}

	// Anchoring is best-effort: its error is inspected for logging only and
	// never fails the run.
	cid := ""
	if p.anchorer != nil && p.anchorer.Enabled() {
		cid, err = p.anchorer.Anchor(ctx, jsonBytes)
		if err != nil {
			log.Printf("snapshot job %s: anchoring failed, continuing without CID: %v", job, err)
			cid = ""
		} else if cid != "" {
			log.Printf("snapshot job %s: anchored as %s", job, cid)
		}
	}

	snap, err := p.ledger.Upsert(ctx, ledger.Record{
		DateUTC:    job.DateUTC,
		Region:     job.Region,
		CSVURL:     csvRes.URL,
		CSVSHA256:  csvRes.SHA256,
		JSONURL:    jsonRes.URL,
		JSONSHA256: jsonRes.SHA256,
		IPFSCID:    cid,
	})
	if err != nil {
		return nil, fail(StateCommitting, err)
	}

	log.Printf("snapshot job %s: committed snapshot id=%d csv=%s json=%s items=%d",
		job, snap.ID, snap.CSVSHA256, snap.JSONSHA256, artifact.ListLength)
	return &Result{Snapshot: snap, State: StateDone}, nil
}

// uploadArtifact puts one artifact unless it already exists. In the skip
// path the ledger entry gets the locally recomputed hash; with
// VerifyExisting the stored object is read back and a digest mismatch
// forces a re-upload.
func (p *Pipeline) uploadArtifact(ctx context.Context, key string, data []byte, contentType, localHash string, force bool) (store.UploadResult, error) {
	exists, err := p.store.Exists(ctx, key)
	if err != nil {
		return store.UploadResult{}, err
	}

	if !exists || force {
		res, err := p.store.Put(ctx, key, data, contentType)
		if err != nil {
			return store.UploadResult{}, err
		}
		log.Printf("uploaded %s (%s)", key, res.SHA256)
		return res, nil
	}

	if p.opts.VerifyExisting {
		stored, err := p.store.Get(ctx, key)
		if err != nil {
			return store.UploadResult{}, err
		}
		if hash.SHA256(stored) != localHash {
			log.Printf("stored object %s digest mismatch, re-uploading", key)
			return p.store.Put(ctx, key, data, contentType)
		}
	}

	log.Printf("%s already exists in storage, skipping upload", key)
	return store.UploadResult{URL: p.store.URL(key), SHA256: localHash}, nil
}

func fail(state State, err error) error {
	return fmt.Errorf("%s: %w", state, err)
}
