// Package gcp wraps the Google Cloud services the action can use: Cloud
// Logging for run logs and Secret Manager as the GitHub App key source.
// Both are optional; the action degrades to local logging and env-provided
// tokens outside GCP.
package gcp

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"
)

// logID is the Cloud Logging log name run entries are written under.
const logID = "federated-issue-action"

// RunLogger writes federation run logs to Cloud Logging, labeled with the
// run ID so the entries of one event correlate.
type RunLogger struct {
	client *logging.Client
	logger *logging.Logger
}

// NewRunLogger creates a RunLogger for the given run. The GCP project is
// discovered from the environment or the metadata server; when neither is
// available an error is returned and the caller falls back to local logging.
func NewRunLogger(ctx context.Context, runID string, opts ...option.ClientOption) (*RunLogger, error) {
	projectID, err := getProjectID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to determine GCP project: %w", err)
	}

	client, err := logging.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging client: %w", err)
	}

	logger := client.Logger(logID, logging.CommonLabels(map[string]string{
		"run_id":    runID,
		"component": "federator",
	}))

	return &RunLogger{client: client, logger: logger}, nil
}

func (l *RunLogger) log(severity logging.Severity, msg string) {
	l.logger.Log(logging.Entry{Severity: severity, Payload: msg})
}

// Info writes an INFO entry.
func (l *RunLogger) Info(msg string) {
	l.log(logging.Info, msg)
}

// Warning writes a WARNING entry.
func (l *RunLogger) Warning(msg string) {
	l.log(logging.Warning, msg)
}

// Error writes an ERROR entry.
func (l *RunLogger) Error(msg string) {
	l.log(logging.Error, msg)
}

// Close flushes buffered entries and releases the client. Must be called
// before the process exits or trailing entries are lost.
func (l *RunLogger) Close() error {
	if err := l.client.Close(); err != nil {
		return fmt.Errorf("failed to close logging client: %w", err)
	}
	return nil
}

// getProjectID retrieves the GCP project ID from the environment or the
// metadata server.
func getProjectID(ctx context.Context) (string, error) {
	for _, key := range []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"} {
		if projectID := os.Getenv(key); projectID != "" {
			return projectID, nil
		}
	}
	return getProjectIDFromMetadata(ctx)
}
