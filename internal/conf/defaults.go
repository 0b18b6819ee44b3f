// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults shared with the subcommands
const (
	DefaultOrg             = "wp"
	DefaultCloudStorageID  = 4837
	DefaultServerPrefix    = "test_1000/images/"
	DefaultTaskName        = "Hand Detection - HumanSignal Import"
	DefaultLabelColor      = "#ff00ff"
	DefaultImageQuality    = 70
	DefaultExcludedTaskID  = 1967925
	DefaultHumanSignalJSON = "data/result.json"
)

// DefaultLabels are the hand detection labels used when none are configured
func DefaultLabels() []Label {
	return []Label{
		{Name: "Left hand", Color: DefaultLabelColor},
		{Name: "Partial left hand", Color: DefaultLabelColor},
		{Name: "Partial right hand", Color: DefaultLabelColor},
		{Name: "Right hand", Color: DefaultLabelColor},
	}
}

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("cvat.url", "https://app.cvat.ai")
	v.SetDefault("cvat.api_key", "")
	v.SetDefault("cvat.org", DefaultOrg)

	v.SetDefault("cloud_storage.id", DefaultCloudStorageID)
	v.SetDefault("cloud_storage.name", "Annotation")

	v.SetDefault("files.humansignal_json", DefaultHumanSignalJSON)
	v.SetDefault("files.server_prefix", DefaultServerPrefix)

	v.SetDefault("task.name", DefaultTaskName)
	v.SetDefault("task.image_quality", DefaultImageQuality)

	v.SetDefault("excluded_tasks", []int{DefaultExcludedTaskID})

	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.prefix", DefaultServerPrefix)
	v.SetDefault("s3.aws_access_key_id", "")
	v.SetDefault("s3.aws_secret_access_key", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.account_id", "")
	v.SetDefault("s3.endpoint", "")

	v.SetDefault("http.timeout", 60*time.Second)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.rate_limit_ms", 0)

	v.SetDefault("output.logs_dir", "logs")
	v.SetDefault("output.reports_dir", "reports")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file.enabled", true)
	v.SetDefault("logging.file.path", "logs/cvat-tools.log")
	v.SetDefault("logging.file.level", "debug")

	v.SetDefault("store.type", "json")
	v.SetDefault("store.sqlite.path", "reports/cvat-tools.db")
	v.SetDefault("store.mysql.port", "3306")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "cvat-tools/runs")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("metrics.textfile", "")
}
