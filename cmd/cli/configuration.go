package cli

import (
	"time"

	"github.com/temirov/flux-validator/internal/discovery"
	"github.com/temirov/flux-validator/internal/utils"
)

const (
	commonLogLevelConfigKeyConstant          = "common.log_level"
	commonLogFormatConfigKeyConstant         = "common.log_format"
	scanPatternsConfigKeyConstant            = "scan.patterns"
	scanSkipDirectoriesConfigKeyConstant     = "scan.skip_directories"
	scanWorkersConfigKeyConstant             = "scan.workers"
	rotationKeyConfigKeyConstant             = "rotation.kms_arn"
	rotationSopsBinaryConfigKeyConstant      = "rotation.sops_binary"
	rotationTimeoutConfigKeyConstant         = "rotation.timeout"
	rotationWorkersConfigKeyConstant         = "rotation.workers"
	rotationVerifyTargetKeyConfigKeyConstant = "rotation.verify_target_key"
	rotationRegionConfigKeyConstant          = "rotation.aws_region"
	sopsKeyEnvironmentVariableConstant       = "SOPS_KMS_ARN"
	defaultScanWorkersConstant               = 4
	defaultRotationWorkersConstant           = 1
	defaultRotationTimeoutConstant           = 2 * time.Minute
	defaultSopsBinaryConstant                = "sops"
)

// ApplicationConfiguration describes the persisted configuration for the command line.
type ApplicationConfiguration struct {
	Common   CommonConfiguration   `mapstructure:"common"`
	Scan     ScanConfiguration     `mapstructure:"scan"`
	Rotation RotationConfiguration `mapstructure:"rotation"`
}

// CommonConfiguration stores logging settings.
type CommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ScanConfiguration controls which files are indexed.
type ScanConfiguration struct {
	Patterns        []string `mapstructure:"patterns"`
	SkipDirectories []string `mapstructure:"skip_directories"`
	Workers         int      `mapstructure:"workers"`
}

// RotationConfiguration controls re-encryption.
type RotationConfiguration struct {
	KeyARN          string        `mapstructure:"kms_arn"`
	SopsBinary      string        `mapstructure:"sops_binary"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Workers         int           `mapstructure:"workers"`
	VerifyTargetKey bool          `mapstructure:"verify_target_key"`
	AWSRegion       string        `mapstructure:"aws_region"`
}

// DefaultConfigurationValues lists the values applied beneath the embedded configuration.
func DefaultConfigurationValues() map[string]any {
	return map[string]any{
		commonLogLevelConfigKeyConstant:          string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant:         string(utils.LogFormatConsole),
		scanPatternsConfigKeyConstant:            discovery.DefaultPatterns(),
		scanSkipDirectoriesConfigKeyConstant:     discovery.DefaultSkipDirectories(),
		scanWorkersConfigKeyConstant:             defaultScanWorkersConstant,
		rotationKeyConfigKeyConstant:             "",
		rotationSopsBinaryConfigKeyConstant:      defaultSopsBinaryConstant,
		rotationTimeoutConfigKeyConstant:         defaultRotationTimeoutConstant.String(),
		rotationWorkersConfigKeyConstant:         defaultRotationWorkersConstant,
		rotationVerifyTargetKeyConfigKeyConstant: false,
		rotationRegionConfigKeyConstant:          "",
	}
}
