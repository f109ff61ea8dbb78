package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gridplan/gridplan/pkg/log"
	"github.com/gridplan/gridplan/pkg/types"
)

const (
	runsCollection   = "runs"
	reportCollection = "report"
	// Firestore caps documents at 1 MiB, so reports are split across chunk
	// documents under the run.
	reportChunkSize = 900 * 1024
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Each run is a document in "runs" holding the run as a JSON blob
// plus the fields used for ordering and filtering.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

var _ Database = (*FirestoreProvider)(nil)

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// project ID may be empty and detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func chunkID(i int) string {
	return fmt.Sprintf("%04d", i)
}

// SaveRun stores the run document and its report chunks in one transaction.
func (f *FirestoreProvider) SaveRun(ctx context.Context, run types.Run) error {
	if err := validateRun(run); err != nil {
		return err
	}
	report := run.Report
	run.Report = nil
	jsonBytes, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	var chunks [][]byte
	for len(report) > 0 {
		n := min(len(report), reportChunkSize)
		chunks = append(chunks, report[:n])
		report = report[n:]
	}

	doc := f.client.Collection(runsCollection).Doc(run.ID)
	err = f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(doc, map[string]interface{}{
			"json":         string(jsonBytes),
			"createdAt":    run.CreatedAt,
			"status":       string(run.Status),
			"mode":         string(run.Scenario.Mode),
			"objective":    run.Objective,
			"reportChunks": len(chunks),
		}); err != nil {
			return err
		}
		for i, c := range chunks {
			if err := tx.Set(doc.Collection(reportCollection).Doc(chunkID(i)), map[string]interface{}{
				"data": c,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func decodeRun(ctx context.Context, doc *firestore.DocumentSnapshot) (types.Run, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "run doc missing json", slog.String("runID", doc.Ref.ID), slog.Any("err", err))
		return types.Run{}, fmt.Errorf("run document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "run doc json not string", slog.String("runID", doc.Ref.ID))
		return types.Run{}, fmt.Errorf("run document %s 'json' field is not string", doc.Ref.ID)
	}
	var run types.Run
	if err := json.Unmarshal([]byte(jsonStr), &run); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal run", slog.String("runID", doc.Ref.ID), slog.Any("err", err))
		return types.Run{}, fmt.Errorf("failed to unmarshal run (id=%s): %w", doc.Ref.ID, err)
	}
	return run, nil
}

// GetRun retrieves a run and reassembles its report.
func (f *FirestoreProvider) GetRun(ctx context.Context, id string) (types.Run, error) {
	if id == "" {
		return types.Run{}, fmt.Errorf("%w: empty id", ErrRunNotFound)
	}
	ref := f.client.Collection(runsCollection).Doc(id)
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return types.Run{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	run, err := decodeRun(ctx, doc)
	if err != nil {
		return types.Run{}, err
	}

	var chunks int
	if v, err := doc.DataAt("reportChunks"); err == nil {
		if n, ok := v.(int64); ok {
			chunks = int(n)
		}
	}
	for i := 0; i < chunks; i++ {
		c, err := ref.Collection(reportCollection).Doc(chunkID(i)).Get(ctx)
		if err != nil {
			return types.Run{}, fmt.Errorf("failed to get report chunk %d of run %s: %w", i, id, err)
		}
		val, err := c.DataAt("data")
		if err != nil {
			return types.Run{}, fmt.Errorf("report chunk %d of run %s missing data: %w", i, id, err)
		}
		b, ok := val.([]byte)
		if !ok {
			return types.Run{}, fmt.Errorf("report chunk %d of run %s is not bytes", i, id)
		}
		run.Report = append(run.Report, b...)
	}
	return run, nil
}

// ListRuns returns the newest runs first. Malformed documents are skipped.
func (f *FirestoreProvider) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	iter := f.client.Collection(runsCollection).
		OrderBy("createdAt", firestore.Desc).
		Limit(listLimit(limit)).
		Documents(ctx)
	defer iter.Stop()

	var runs []types.Run
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating runs: %w", err)
		}
		run, err := decodeRun(ctx, doc)
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}
