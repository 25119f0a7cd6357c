package utils

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	environmentKeySeparatorOldConstant              = "."
	environmentKeySeparatorNewConstant              = "_"
	listSeparatorConstant                           = ","
	configurationReadErrorTemplateConstant          = "failed to read configuration: %w"
	configurationUnmarshalErrorTemplateConstant     = "failed to parse configuration: %w"
	embeddedConfigurationMergeErrorTemplateConstant = "failed to merge embedded configuration: %w"
	environmentBindingErrorTemplateConstant         = "failed to bind environment for %s: %w"
)

// ConfigurationLoader layers embedded defaults, an optional configuration file, and
// environment variables through Viper.
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	environmentBindings       map[string][]string
	embeddedConfiguration     []byte
	embeddedConfigurationType string
}

// LoadedConfiguration surfaces metadata about the resolved configuration.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// NewConfigurationLoader creates a loader that searches searchPaths for configurationName
// and reads environment overrides under environmentPrefix.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName:   configurationName,
		configurationType:   configurationType,
		environmentPrefix:   environmentPrefix,
		searchPaths:         append([]string(nil), searchPaths...),
		environmentBindings: make(map[string][]string),
	}
}

// SetEmbeddedConfiguration stores configuration data merged before any user-provided file.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	if loader == nil {
		return
	}
	loader.embeddedConfigurationType = strings.TrimSpace(configurationType)
	loader.embeddedConfiguration = nil
	if len(configurationData) > 0 {
		loader.embeddedConfiguration = append([]byte(nil), configurationData...)
	}
}

// BindEnvironmentVariable maps configurationKey to unprefixed environment variable names,
// such as SOPS_KMS_ARN, in addition to the prefixed name derived automatically.
func (loader *ConfigurationLoader) BindEnvironmentVariable(configurationKey string, environmentVariableNames ...string) {
	if loader == nil || len(environmentVariableNames) == 0 {
		return
	}
	loader.environmentBindings[configurationKey] = append(loader.environmentBindings[configurationKey], environmentVariableNames...)
}

// LoadConfiguration populates targetConfiguration. Precedence from lowest to highest is
// defaultValues, embedded configuration, configuration file, environment.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, targetConfiguration any) (LoadedConfiguration, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigName(loader.configurationName)
	viperInstance.SetConfigType(loader.configurationType)

	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	if mergeError := loader.mergeEmbeddedConfiguration(viperInstance); mergeError != nil {
		return LoadedConfiguration{}, mergeError
	}

	if bindError := loader.configureEnvironment(viperInstance); bindError != nil {
		return LoadedConfiguration{}, bindError
	}

	for _, searchPath := range loader.searchPaths {
		viperInstance.AddConfigPath(searchPath)
	}
	if len(configurationFilePath) > 0 {
		viperInstance.SetConfigFile(configurationFilePath)
	}

	if readError := viperInstance.MergeInConfig(); readError != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(readError, &notFoundError) {
			return LoadedConfiguration{}, fmt.Errorf(configurationReadErrorTemplateConstant, readError)
		}
	}

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(listSeparatorConstant),
	))
	if unmarshalError := viperInstance.Unmarshal(targetConfiguration, decodeHook); unmarshalError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationUnmarshalErrorTemplateConstant, unmarshalError)
	}

	return LoadedConfiguration{ConfigFileUsed: viperInstance.ConfigFileUsed()}, nil
}

func (loader *ConfigurationLoader) mergeEmbeddedConfiguration(viperInstance *viper.Viper) error {
	if len(loader.embeddedConfiguration) == 0 {
		return nil
	}

	embeddedType := loader.configurationType
	if len(loader.embeddedConfigurationType) > 0 {
		embeddedType = loader.embeddedConfigurationType
	}

	viperInstance.SetConfigType(embeddedType)
	defer viperInstance.SetConfigType(loader.configurationType)

	if mergeError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedConfiguration)); mergeError != nil {
		return fmt.Errorf(embeddedConfigurationMergeErrorTemplateConstant, mergeError)
	}
	return nil
}

func (loader *ConfigurationLoader) configureEnvironment(viperInstance *viper.Viper) error {
	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(environmentKeySeparatorOldConstant, environmentKeySeparatorNewConstant))
	viperInstance.AutomaticEnv()

	for configurationKey, environmentVariableNames := range loader.environmentBindings {
		prefixedName := strings.ToUpper(strings.ReplaceAll(configurationKey, environmentKeySeparatorOldConstant, environmentKeySeparatorNewConstant))
		if len(loader.environmentPrefix) > 0 {
			prefixedName = strings.ToUpper(loader.environmentPrefix) + environmentKeySeparatorNewConstant + prefixedName
		}
		bindArguments := append([]string{configurationKey, prefixedName}, environmentVariableNames...)
		if bindError := viperInstance.BindEnv(bindArguments...); bindError != nil {
			return fmt.Errorf(environmentBindingErrorTemplateConstant, configurationKey, bindError)
		}
	}
	return nil
}
