package schedule

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/strata/errors"
)

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(`
jobs:
  - name: transactions
    description: Mock transaction feed
    schedule:
      type: interval
      seconds: 60
  - name: trade
    description: Land trade ingestion
    args:
      region_cd: "11110"
    schedule:
      type: daily
      time: "02:00"
    depends_on: [transactions]
`), nil)
	require.NoError(t, err)
	require.Len(t, doc.Jobs, 2)

	first := doc.Jobs[0]
	assert.Equal(t, "transactions", first.Name)
	assert.Equal(t, "Mock transaction feed", first.Description)
	assert.Equal(t, 0, first.Position)
	assert.Empty(t, first.Args)
	assert.Empty(t, first.DependsOn)
	assert.Equal(t, PolicySpec{Type: "interval", Seconds: 60}, first.Policy.Spec())

	second := doc.Jobs[1]
	assert.Equal(t, "trade", second.Name)
	assert.Equal(t, 1, second.Position)
	assert.Equal(t, "11110", second.Args["region_cd"])
	assert.Equal(t, []string{"transactions"}, second.DependsOn)
	assert.Equal(t, PolicySpec{Type: "daily", Time: "02:00"}, second.Policy.Spec())
}

func TestParseDocument_Defaults(t *testing.T) {
	doc, err := ParseDocument([]byte(`
jobs:
  - name: analyze
`), nil)
	require.NoError(t, err)
	require.Len(t, doc.Jobs, 1)

	job := doc.Jobs[0]
	assert.Equal(t, "", job.Description)
	assert.NotNil(t, job.Args)
	assert.NotNil(t, job.DependsOn)
	// Omitted schedule block means interval every 300 seconds
	assert.Equal(t, PolicySpec{Type: "interval", Seconds: 300}, job.Policy.Spec())
}

func TestParseDocument_DisabledJobsDropped(t *testing.T) {
	doc, err := ParseDocument([]byte(`
jobs:
  - name: active
    schedule:
      type: interval
      seconds: 60
  - name: retired
    enabled: false
    schedule:
      type: interval
      seconds: 60
  - name: also_active
    enabled: true
`), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "also_active"}, doc.JobNames())
	// Positions stay contiguous after the drop
	assert.Equal(t, 0, doc.Jobs[0].Position)
	assert.Equal(t, 1, doc.Jobs[1].Position)
}

func TestParseDocument_DisabledJobsToleratePolicyErrors(t *testing.T) {
	// A disabled entry with a broken schedule must not fail the load
	doc, err := ParseDocument([]byte(`
jobs:
  - name: ok
  - name: broken
    enabled: false
    schedule:
      type: cron
      expression: "not valid"
`), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, doc.JobNames())
}

func TestParseDocument_Validation(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		_, err := ParseDocument([]byte(`
jobs:
  - description: nameless
`), nil)
		require.Error(t, err)
		assert.True(t, errors.IsConfiguration(err))
	})

	t.Run("duplicate names", func(t *testing.T) {
		_, err := ParseDocument([]byte(`
jobs:
  - name: twice
  - name: twice
`), nil)
		require.Error(t, err)
		assert.True(t, errors.IsConfiguration(err))
		assert.Contains(t, err.Error(), "twice")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := ParseDocument([]byte(`
jobs:
  - name: trade
    depends_on: [nonexistent]
`), nil)
		require.Error(t, err)
		assert.True(t, errors.IsConfiguration(err))
		assert.Contains(t, err.Error(), "nonexistent")
	})

	t.Run("dependency on a disabled job is allowed", func(t *testing.T) {
		// depends_on is advisory; disabling a job must not break dependents
		doc, err := ParseDocument([]byte(`
jobs:
  - name: upstream
    enabled: false
  - name: downstream
    depends_on: [upstream]
`), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"downstream"}, doc.JobNames())
	})

	t.Run("cron without a parser", func(t *testing.T) {
		_, err := ParseDocument([]byte(`
jobs:
  - name: nightly
    schedule:
      type: cron
      expression: "0 3 * * *"
`), nil)
		require.Error(t, err)
		assert.True(t, errors.IsConfiguration(err))
		assert.Contains(t, err.Error(), "nightly")
	})

	t.Run("cron with a parser", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`
jobs:
  - name: nightly
    schedule:
      type: cron
      expression: "0 3 * * *"
`), NewCronParser())
		require.NoError(t, err)
		require.Len(t, doc.Jobs, 1)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := ParseDocument([]byte("jobs: [\n"), nil)
		require.Error(t, err)
		assert.True(t, errors.IsConfiguration(err))
	})
}

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.yaml")
	content := `
jobs:
  - name: transactions
    schedule:
      type: interval
      seconds: 120
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	doc, err := LoadDocument(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"transactions"}, doc.JobNames())

	_, err = LoadDocument(filepath.Join(dir, "missing.yaml"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}
