package logger

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/phrazzld/dbtestkit/internal/ciutil"
)

// CIHandler is a slog.Handler that adds CI environment metadata to every
// record before passing it to a JSON handler.
type CIHandler struct {
	handler  slog.Handler
	metadata []slog.Attr
}

// NewCIHandler creates a CIHandler writing JSON to out.
func NewCIHandler(out io.Writer, opts *slog.HandlerOptions) *CIHandler {
	var handlerOpts slog.HandlerOptions
	if opts != nil {
		handlerOpts = *opts
	}
	return &CIHandler{
		handler:  slog.NewJSONHandler(out, &handlerOpts),
		metadata: ciMetadata(),
	}
}

// Enabled implements the slog.Handler interface.
func (h *CIHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs implements the slog.Handler interface.
func (h *CIHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CIHandler{handler: h.handler.WithAttrs(attrs), metadata: h.metadata}
}

// WithGroup implements the slog.Handler interface.
func (h *CIHandler) WithGroup(name string) slog.Handler {
	return &CIHandler{handler: h.handler.WithGroup(name), metadata: h.metadata}
}

// Handle implements the slog.Handler interface.
func (h *CIHandler) Handle(ctx context.Context, record slog.Record) error {
	enhanced := record.Clone()
	enhanced.AddAttrs(h.metadata...)
	return h.handler.Handle(ctx, enhanced)
}

// ciMetadataEnv maps log attribute names to the CI variables they copy.
var ciMetadataEnv = map[string]string{
	"ci_commit":   "GITHUB_SHA",
	"ci_run_id":   "GITHUB_RUN_ID",
	"ci_workflow": "GITHUB_WORKFLOW",
	"ci_job_id":   "CI_JOB_ID",
	"ci_pipeline": "CI_PIPELINE_ID",
}

func ciMetadata() []slog.Attr {
	provider := "generic"
	switch {
	case ciutil.IsGitHubActions():
		provider = "github_actions"
	case ciutil.IsGitLabCI():
		provider = "gitlab_ci"
	}
	attrs := []slog.Attr{slog.String("ci_provider", provider)}
	for _, name := range slices.Sorted(maps.Keys(ciMetadataEnv)) {
		if v := os.Getenv(ciMetadataEnv[name]); v != "" {
			attrs = append(attrs, slog.String(name, v))
		}
	}
	return attrs
}
