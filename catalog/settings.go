package catalog

import "encoding/json"

const (
	DefaultFaultySessionThreshold = 30
	DefaultAttemptToFixRetries    = 20
)

type SlowTestRetries struct {
	FiveSeconds   int `json:"5s" yaml:"5s"`
	TenSeconds    int `json:"10s" yaml:"10s"`
	ThirtySeconds int `json:"30s" yaml:"30s"`
	FiveMinutes   int `json:"5m" yaml:"5m"`
}

type EarlyFlakeDetectionSettings struct {
	Enabled                bool            `json:"enabled" yaml:"enabled"`
	SlowTestRetries        SlowTestRetries `json:"slow_test_retries" yaml:"slow_test_retries"`
	FaultySessionThreshold int             `json:"faulty_session_threshold" yaml:"faulty_session_threshold"`
}

type AutoTestRetriesSettings struct {
	Enabled bool `yaml:"enabled"`
}

type TestManagementSettings struct {
	Enabled             bool `json:"enabled" yaml:"enabled"`
	AttemptToFixRetries int  `json:"attempt_to_fix_retries" yaml:"attempt_to_fix_retries"`
}

// Settings are the backend-controlled feature switches for a session.
type Settings struct {
	EarlyFlakeDetection EarlyFlakeDetectionSettings `yaml:"early_flake_detection"`
	AutoTestRetries     AutoTestRetriesSettings     `yaml:"auto_test_retries"`
	TestManagement      TestManagementSettings      `yaml:"test_management"`
	KnownTestsEnabled   bool                        `yaml:"known_tests_enabled"`
	SkippingEnabled     bool                        `yaml:"tests_skipping"`
	CodeCoverageEnabled bool                        `yaml:"code_coverage"`
}

// DefaultSettings has every feature disabled.
func DefaultSettings() Settings {
	return Settings{
		EarlyFlakeDetection: EarlyFlakeDetectionSettings{
			SlowTestRetries: SlowTestRetries{
				FiveSeconds:   10,
				TenSeconds:    5,
				ThirtySeconds: 3,
				FiveMinutes:   2,
			},
			FaultySessionThreshold: DefaultFaultySessionThreshold,
		},
		TestManagement: TestManagementSettings{
			AttemptToFixRetries: DefaultAttemptToFixRetries,
		},
	}
}

// settingsAttributes mirrors the "attributes" object of the settings response.
type settingsAttributes struct {
	EarlyFlakeDetection *EarlyFlakeDetectionSettings `json:"early_flake_detection"`
	FlakyTestRetries    bool                         `json:"flaky_test_retries_enabled"`
	KnownTestsEnabled   bool                         `json:"known_tests_enabled"`
	TestManagement      *TestManagementSettings      `json:"test_management"`
	TestsSkipping       bool                         `json:"tests_skipping"`
	ITREnabled          bool                         `json:"itr_enabled"`
	CodeCoverage        bool                         `json:"code_coverage"`
}

// ParseSettings decodes the attributes of a settings response on top of the defaults.
func ParseSettings(raw json.RawMessage) (Settings, error) {
	settings := DefaultSettings()
	attrs := settingsAttributes{
		EarlyFlakeDetection: &settings.EarlyFlakeDetection,
		TestManagement:      &settings.TestManagement,
	}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return DefaultSettings(), err
	}
	if attrs.EarlyFlakeDetection != nil {
		settings.EarlyFlakeDetection = *attrs.EarlyFlakeDetection
	}
	if attrs.TestManagement != nil {
		settings.TestManagement = *attrs.TestManagement
	}
	settings.AutoTestRetries.Enabled = attrs.FlakyTestRetries
	settings.KnownTestsEnabled = attrs.KnownTestsEnabled
	settings.SkippingEnabled = attrs.ITREnabled && attrs.TestsSkipping
	settings.CodeCoverageEnabled = attrs.CodeCoverage
	return settings, nil
}
