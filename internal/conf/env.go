// env.go - Environment variable overrides
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for an environment variable binding
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

// getEnvBindings returns the validated environment variables. Every other key
// is still reachable through AutomaticEnv as CVAT_TOOLS_<SECTION>_<KEY>.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"cvat.url", "CVAT_URL", validateEnvURL},
		{"cvat.api_key", "CVAT_API_KEY", nil},
		{"cvat.org", "CVAT_ORG", nil},
		{"s3.aws_access_key_id", "AWS_ACCESS_KEY_ID", nil},
		{"s3.aws_secret_access_key", "AWS_SECRET_ACCESS_KEY", nil},
		{"http.max_retries", "CVAT_TOOLS_HTTP_MAX_RETRIES", validateEnvNonNegativeInt},
		{"sentry.dsn", "SENTRY_DSN", validateEnvURL},
	}
}

// bindEnvVars sets up environment overrides with validation
func bindEnvVars(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var problems []string
	for _, binding := range getEnvBindings() {
		// Both the prefixed form and the conventional name are accepted.
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(binding.ConfigKey, ".", "_"))
		if err := v.BindEnv(binding.ConfigKey, prefixed, binding.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		for _, name := range []string{prefixed, binding.EnvVar} {
			if value := os.Getenv(name); value != "" {
				if err := binding.Validate(value); err != nil {
					problems = append(problems, fmt.Sprintf("invalid %s: %v", name, err))
				}
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", value)
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}
