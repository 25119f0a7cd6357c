package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/flux-validator/internal/utils"
	"github.com/temirov/flux-validator/internal/utils/flags"
	pathutils "github.com/temirov/flux-validator/internal/utils/path"
)

const (
	applicationNameConstant                 = "flux-validator"
	applicationUseConstant                  = "flux-validator [DIR]"
	applicationShortDescriptionConstant     = "Report duplicate names and KMS key usage across Flux manifests"
	applicationLongDescriptionConstant      = "flux-validator scans a directory of Flux/Kubernetes YAML manifests, reports names declared more than once and the KMS keys protecting each file, and can rotate SOPS-encrypted manifests to a new KMS key."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format."
	completionFlagNameConstant              = "gen"
	completionFlagShorthandConstant         = "g"
	completionFlagUsageConstant             = "Print a shell completion script and exit."
	keyFlagNameConstant                     = "kms"
	keyFlagUsageConstant                    = "Target KMS key ARN for rotation (defaults to $SOPS_KMS_ARN)."
	rotateFlagNameConstant                  = "rotate"
	rotateFlagShorthandConstant             = "r"
	rotateFlagUsageConstant                 = "Rotate encrypted manifests to the target key after reporting."
	rotateFromFlagNameConstant              = "rotate-from"
	rotateFromFlagUsageConstant             = "Source KMS key ARN to rotate away from (repeatable; defaults to every other key in use)."
	versionFlagNameConstant                 = "version"
	versionFlagShorthandConstant            = "V"
	versionFlagUsageConstant                = "Print the version and exit."
	environmentPrefixConstant               = "FLUXVALIDATOR"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationSearchPathConstant         = "."
	configurationInitializedMessageConstant = "Configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	rootResolutionErrorTemplateConstant     = "unable to resolve %s: %w"
)

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand           *cobra.Command
	configurationLoader   *utils.ConfigurationLoader
	loggerFactory         *utils.LoggerFactory
	logger                *zap.Logger
	configuration         ApplicationConfiguration
	configurationMetadata utils.LoadedConfiguration
	homeExpander          *pathutils.HomeExpander
	fileSystem            afero.Fs
	reencryptorFactory    ReencryptorFactory
	verifierFactory       KeyVerifierFactory
	versionResolver       func(context.Context) string
	flagValues            commandFlagValues
}

type commandFlagValues struct {
	configurationFilePath string
	logLevel              string
	logFormat             string
	completionShell       string
	targetKey             string
	rotate                bool
	rotateFrom            []string
	printVersion          bool
}

// NewApplication assembles a fully wired command line application.
func NewApplication() *Application {
	application := &Application{
		configurationLoader: newConfigurationLoader(),
		loggerFactory:       utils.NewLoggerFactory(),
		logger:              zap.NewNop(),
		homeExpander:        pathutils.NewHomeExpander(),
		fileSystem:          afero.NewOsFs(),
		reencryptorFactory:  newSopsReencryptor,
		verifierFactory:     newKMSKeyVerifier,
		versionResolver:     resolveVersion,
	}

	cobraCommand := &cobra.Command{
		Use:           applicationUseConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			if application.flagValues.printVersion || len(application.flagValues.completionShell) > 0 {
				return nil
			}
			if initializationError := application.initializeConfiguration(command); initializationError != nil {
				return fatalError(initializationError)
			}
			return nil
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}
	cobraCommand.SetContext(context.Background())

	persistentFlags := cobraCommand.PersistentFlags()
	persistentFlags.StringVar(&application.flagValues.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	flags.AddChoiceFlag(persistentFlags, &application.flagValues.logLevel, logLevelFlagNameConstant, "", string(utils.LogLevelInfo), utils.SupportedLogLevels(), logLevelFlagUsageConstant)
	flags.AddChoiceFlag(persistentFlags, &application.flagValues.logFormat, logFormatFlagNameConstant, "", string(utils.LogFormatConsole), utils.SupportedLogFormats(), logFormatFlagUsageConstant)

	localFlags := cobraCommand.Flags()
	flags.AddChoiceFlag(localFlags, &application.flagValues.completionShell, completionFlagNameConstant, completionFlagShorthandConstant, "", supportedCompletionShells(), completionFlagUsageConstant)
	localFlags.StringVar(&application.flagValues.targetKey, keyFlagNameConstant, "", keyFlagUsageConstant)
	localFlags.BoolVarP(&application.flagValues.rotate, rotateFlagNameConstant, rotateFlagShorthandConstant, false, rotateFlagUsageConstant)
	localFlags.StringArrayVar(&application.flagValues.rotateFrom, rotateFromFlagNameConstant, nil, rotateFromFlagUsageConstant)
	localFlags.BoolVarP(&application.flagValues.printVersion, versionFlagNameConstant, versionFlagShorthandConstant, false, versionFlagUsageConstant)

	application.rootCommand = cobraCommand
	return application
}

// Execute runs the root command with the process arguments and flushes the logger.
func (application *Application) Execute() error {
	return application.ExecuteContext(context.Background(), os.Args[1:])
}

// ExecuteContext runs the root command with arguments and flushes the logger.
func (application *Application) ExecuteContext(executionContext context.Context, arguments []string) error {
	application.rootCommand.SetArgs(arguments)
	executionError := application.rootCommand.ExecuteContext(executionContext)
	if syncError := application.flushLogger(); syncError != nil && executionError == nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes it with the process arguments.
func Execute() error {
	return NewApplication().Execute()
}

func newConfigurationLoader() *utils.ConfigurationLoader {
	searchPaths := []string{configurationSearchPathConstant}
	if userConfigurationDirectory, directoryError := os.UserConfigDir(); directoryError == nil {
		searchPaths = append(searchPaths, filepath.Join(userConfigurationDirectory, applicationNameConstant))
	}

	loader := utils.NewConfigurationLoader(configurationNameConstant, configurationTypeConstant, environmentPrefixConstant, searchPaths)
	loader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())
	loader.BindEnvironmentVariable(rotationKeyConfigKeyConstant, sopsKeyEnvironmentVariableConstant)
	return loader
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(
		application.flagValues.configurationFilePath,
		DefaultConfigurationValues(),
		&application.configuration,
	)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}
	application.configurationMetadata = loadedConfiguration

	if persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.flagValues.logLevel
	}
	if persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.flagValues.logFormat
	}
	if command != nil && command.Flags().Changed(keyFlagNameConstant) {
		application.configuration.Rotation.KeyARN = application.flagValues.targetKey
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}
	application.logger = logger

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)
	return nil
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	output := utils.NewFlushingWriter(command.OutOrStdout())

	if application.flagValues.printVersion {
		_, writeError := fmt.Fprintf(output, versionOutputTemplate, applicationNameConstant, application.versionResolver(command.Context()))
		return writeError
	}
	if len(application.flagValues.completionShell) > 0 {
		if completionError := writeCompletionScript(command.Root(), application.flagValues.completionShell, output); completionError != nil {
			return fatalError(completionError)
		}
		return nil
	}

	if len(application.flagValues.rotateFrom) > 0 && !application.flagValues.rotate {
		return fatalError(ErrRotateFromWithoutRotate)
	}
	if application.flagValues.rotate && len(strings.TrimSpace(application.configuration.Rotation.KeyARN)) == 0 {
		return fatalError(ErrTargetKeyRequired)
	}

	requestedRoot := ""
	if len(arguments) > 0 {
		requestedRoot = arguments[0]
	}
	root, resolveError := application.homeExpander.ResolveRoot(requestedRoot)
	if resolveError != nil {
		return fatalError(fmt.Errorf(rootResolutionErrorTemplateConstant, requestedRoot, resolveError))
	}

	return application.validate(command.Context(), root, output)
}

func (application *Application) humanReadableLoggingEnabled() bool {
	return strings.EqualFold(strings.TrimSpace(application.configuration.Common.LogFormat), string(utils.LogFormatConsole))
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{command.PersistentFlags(), command.InheritedFlags()}
	if rootCommand := command.Root(); rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet != nil && flagSet.Changed(flagName) {
			return true
		}
	}
	return false
}

func writeOutput(output io.Writer, text string) error {
	_, writeError := io.WriteString(output, text)
	return writeError
}
