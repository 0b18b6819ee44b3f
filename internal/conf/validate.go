// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings checks values that are wrong regardless of which
// subcommand runs. Credentials are checked later by RequireCVAT and
// RequireS3 because `setup` must work without them.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if settings.CVAT.URL != "" {
		if err := validateEnvURL(settings.CVAT.URL); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("cvat.url: %v", err))
		}
	}
	if settings.HTTP.MaxRetries < 0 {
		ve.Errors = append(ve.Errors, "http.max_retries must not be negative")
	}
	if settings.HTTP.RateLimitMS < 0 {
		ve.Errors = append(ve.Errors, "http.rate_limit_ms must not be negative")
	}
	if q := settings.Task.ImageQuality; q < 0 || q > 100 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("task.image_quality must be between 0 and 100, got %d", q))
	}
	switch settings.Store.Type {
	case "", "json", "sqlite", "mysql":
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("store.type must be json, sqlite or mysql, got %q", settings.Store.Type))
	}
	for i, a := range settings.Assignees {
		if a.ID <= 0 {
			ve.Errors = append(ve.Errors, fmt.Sprintf("assignees[%d] has no id", i))
		}
	}
	if settings.MQTT.Enabled && settings.MQTT.Broker == "" {
		ve.Errors = append(ve.Errors, "mqtt.broker is required when mqtt is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// RequireCVAT checks the settings needed to call the CVAT API
func (s *Settings) RequireCVAT() error {
	ve := ValidationError{}
	if s.CVAT.URL == "" {
		ve.Errors = append(ve.Errors, "cvat.url is required")
	} else if _, err := url.Parse(s.CVAT.URL); err != nil {
		ve.Errors = append(ve.Errors, fmt.Sprintf("cvat.url: %v", err))
	}
	if s.CVAT.APIKey == "" && s.CVAT.APIKeyFile == "" {
		ve.Errors = append(ve.Errors, "cvat.api_key is required, run `cvat-tools setup`")
	}
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// RequireS3 checks the settings needed to list the bucket
func (s *Settings) RequireS3() error {
	ve := ValidationError{}
	if s.S3.BucketName == "" {
		ve.Errors = append(ve.Errors, "s3.bucket_name is required")
	}
	if s.S3.AccessKeyID == "" || (s.S3.SecretAccessKey == "" && s.S3.SecretKeyFile == "") {
		ve.Errors = append(ve.Errors, "s3.aws_access_key_id and s3.aws_secret_access_key are required")
	}
	if s.S3.Endpoint == "" && s.S3.AccountID == "" {
		ve.Errors = append(ve.Errors, "s3.account_id or s3.endpoint is required")
	}
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}
