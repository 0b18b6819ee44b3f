package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "cvat": {"url": "https://app.cvat.ai", "api_key": "abc123", "org": "lab"},
  "cloud_storage": {"id": 99, "name": "Annotation"},
  "cloud_storage_old": {"id": 12, "name": "Old"},
  "files": {"humansignal_json": "data/export.json"},
  "task": {"name": "Batch 7", "use_job_file_mapping": true,
           "labels": [{"name": "Left hand", "color": "#ff00ff"}]},
  "assignees": [{"id": 5, "name": "Ana"}, {"id": 9, "name": "Bo"}],
  "s3": {"bucket_name": "frames", "account_id": "acc1",
         "aws_access_key_id": "AK", "aws_secret_access_key": "SK"},
  "http": {"timeout": "15s", "max_retries": 5}
}`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	settings, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, DefaultOrg, settings.CVAT.Org)
	assert.Equal(t, DefaultCloudStorageID, settings.CloudStorage.ID)
	assert.Equal(t, DefaultHumanSignalJSON, settings.Files.HumanSignalJSON)
	assert.Equal(t, DefaultServerPrefix, settings.Files.ServerPrefix)
	assert.Equal(t, DefaultTaskName, settings.Task.Name)
	assert.Equal(t, DefaultImageQuality, settings.Task.ImageQuality)
	assert.Equal(t, []int{DefaultExcludedTaskID}, settings.ExcludedTasks)
	assert.Equal(t, "us-east-1", settings.S3.Region)
	assert.Equal(t, 60*time.Second, settings.HTTP.Timeout)
	assert.Equal(t, 3, settings.HTTP.MaxRetries)
	assert.Equal(t, "json", settings.Store.Type)
	assert.Nil(t, settings.Task.UseJobFileMapping)
	assert.False(t, settings.JobFileMapping(false))
	assert.True(t, settings.JobFileMapping(true))

	assert.Error(t, settings.RequireCVAT())
}

func TestLoadFile(t *testing.T) {
	settings, err := Load(writeConfig(t, "config.json", sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "abc123", settings.CVAT.APIKey)
	assert.Equal(t, "lab", settings.CVAT.Org)
	assert.Equal(t, 99, settings.CloudStorage.ID)
	assert.Equal(t, 12, settings.LegacyCloudStorage().ID)
	assert.Equal(t, "data/export.json", settings.Files.HumanSignalJSON)
	assert.True(t, settings.JobFileMapping(false))
	require.Len(t, settings.Task.Labels, 1)
	require.Len(t, settings.Assignees, 2)
	assert.Equal(t, Assignee{ID: 9, Name: "Bo"}, settings.Assignees[1])
	assert.Equal(t, 15*time.Second, settings.HTTP.Timeout)
	assert.Equal(t, 5, settings.HTTP.MaxRetries)
	assert.Equal(t, "acc1.r2.cloudflarestorage.com", settings.S3.ResolvedEndpoint())
	assert.True(t, settings.IsExcluded(DefaultExcludedTaskID))
	assert.False(t, settings.IsExcluded(42))

	assert.NoError(t, settings.RequireCVAT())
	assert.NoError(t, settings.RequireS3())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CVAT_API_KEY", "from-env")
	t.Setenv("CVAT_TOOLS_CVAT_ORG", "envorg")

	settings, err := Load(writeConfig(t, "config.json", sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", settings.CVAT.APIKey)
	assert.Equal(t, "envorg", settings.CVAT.Org)
}

func TestInvalidEnvironmentValue(t *testing.T) {
	t.Setenv("CVAT_URL", "not a url")

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CVAT_URL")
}

func TestValidateSettings(t *testing.T) {
	settings := &Settings{
		Task:      TaskSettings{ImageQuality: 150},
		Store:     StoreSettings{Type: "redis"},
		Assignees: []Assignee{{Name: "nobody"}},
		HTTP:      HTTPSettings{MaxRetries: -1},
	}

	err := ValidateSettings(settings)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 4)
}

func TestRequireS3(t *testing.T) {
	settings := &Settings{}
	err := settings.RequireS3()
	require.Error(t, err)

	settings.S3 = S3Settings{BucketName: "b", AccessKeyID: "a", SecretAccessKey: "s", Endpoint: "https://minio.local:9000"}
	require.NoError(t, settings.RequireS3())
	assert.Equal(t, "minio.local:9000", settings.S3.ResolvedEndpoint())
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			loaded, err := Load(writeConfig(t, "seed.json", sampleConfig))
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "out", name)
			require.NoError(t, Save(path, loaded))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

			reloaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, loaded.CVAT, reloaded.CVAT)
			assert.Equal(t, loaded.Assignees, reloaded.Assignees)
			assert.Equal(t, loaded.Task.Labels, reloaded.Task.Labels)
			assert.Equal(t, loaded.CloudStorageOld, reloaded.CloudStorageOld)
		})
	}
}
