package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepRecordsErrors(t *testing.T) {
	m := New("data_prep")

	require.NoError(t, m.Step("clean", func() error { return nil }))
	err := m.Step("publish", func() error { return errors.New("boom") })
	assert.EqualError(t, err, "boom")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.stepErrors.WithLabelValues("data_prep", "clean")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepErrors.WithLabelValues("data_prep", "publish")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.stepDuration))
}

func TestGauges(t *testing.T) {
	m := New("model_prep")
	m.SetRows("train", 12889)
	m.SetLabels(12)
	m.SetTableRows("questions", 3354)
	m.MarkSuccess()

	assert.Equal(t, 12889.0, testutil.ToFloat64(m.rowsProcessed.WithLabelValues("model_prep", "train")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.numLabels))
	assert.Equal(t, 3354.0, testutil.ToFloat64(m.tableRows.WithLabelValues("questions")))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccessful), 0.0)
}

func TestPush(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New("data_prep")
	m.SetLabels(12)
	require.NoError(t, m.Push(context.Background(), srv.URL, "insuranceqa", "run-1"))

	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/insuranceqa"), gotPath)
	assert.Contains(t, gotPath, "run_id/run-1")
	assert.NotEmpty(t, gotBody)
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New("data_prep").Push(context.Background(), srv.URL, "insuranceqa", "")
	assert.Error(t, err)
}
