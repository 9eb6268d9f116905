package main

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/readmill/pagepress/internal/domain/model"
)

func TestDisplayJobFormatsNullableFields(t *testing.T) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	defer func() {
		os.Stdout = oldStdout
	}()

	os.Stdout = w

	msg := "render page 3: rasteriser exited with status 1"
	pages := 12
	err = displayJob(&model.RenderJob{
		ID:             "9b2f6a1e-1d2c-4a8e-9f30-1f6f2f1f9f10",
		BookID:         42,
		Status:         model.JobStatusFailed,
		ProcessedPages: 2,
		TotalPages:     &pages,
		ErrorMessage:   &msg,
		CreatedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	os.Stdout = oldStdout

	output, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	outStr := string(output)
	require.Regexp(t, `status\s+failed`, outStr)
	require.Regexp(t, `total_pages\s+12`, outStr)
	require.Contains(t, outStr, msg)
	// Nullable timestamps render as a dash instead of a zero time.
	require.Regexp(t, `started_at\s+-`, outStr)
}
