package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	commandSopsStringConstant              = "sops"
	loggerNotConfiguredMessageConstant     = "shell executor requires a logger"
	runnerNotConfiguredMessageConstant     = "shell executor requires a command runner"
	commandFailedTemplateConstant          = "%s exited with code %d%s"
	commandExecutionFailedTemplateConstant = "%s could not be executed: %v"
	standardErrorDetailTemplateConstant    = ": %s"
	logFieldCommandConstant                = "command"
	logFieldArgumentsConstant              = "arguments"
	logFieldWorkingDirectoryConstant       = "working_directory"
	logFieldExitCodeConstant               = "exit_code"
	logFieldStandardErrorConstant          = "stderr"
)

// CommandName identifies an executable invoked through the shell executor.
type CommandName string

// Supported executables.
const (
	CommandSops CommandName = CommandName(commandSopsStringConstant)
)

// ErrLoggerNotConfigured indicates the executor was constructed without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// ErrCommandRunnerNotConfigured indicates the executor was constructed without a runner.
var ErrCommandRunnerNotConfigured = errors.New(runnerNotConfiguredMessageConstant)

// CommandDetails describes the arguments and environment of an invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand pairs an executable with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable results of executing a command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner runs shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandFailedError reports a command that completed with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

func (failure CommandFailedError) Error() string {
	standardErrorDetail := ""
	if trimmed := strings.TrimSpace(failure.Result.StandardError); len(trimmed) > 0 {
		standardErrorDetail = fmt.Sprintf(standardErrorDetailTemplateConstant, trimmed)
	}
	return fmt.Sprintf(commandFailedTemplateConstant, failure.Command.Name, failure.Result.ExitCode, standardErrorDetail)
}

// CommandExecutionError reports a command that could not be started or was interrupted.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

func (failure CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionFailedTemplateConstant, failure.Command.Name, failure.Cause)
}

func (failure CommandExecutionError) Unwrap() error {
	return failure.Cause
}

// ExecutorOption customizes a ShellExecutor.
type ExecutorOption func(executor *ShellExecutor)

// WithCommandEventObserver registers an observer notified about command lifecycle events.
func WithCommandEventObserver(observer CommandEventObserver) ExecutorOption {
	return func(executor *ShellExecutor) {
		if observer != nil {
			executor.observer = observer
		}
	}
}

// WithSopsBinary overrides the executable used for sops invocations.
func WithSopsBinary(binaryPath string) ExecutorOption {
	return func(executor *ShellExecutor) {
		trimmed := strings.TrimSpace(binaryPath)
		if len(trimmed) > 0 {
			executor.sopsCommand = CommandName(trimmed)
		}
	}
}

// ShellExecutor runs commands through a CommandRunner and logs their lifecycle.
type ShellExecutor struct {
	logger      *zap.Logger
	runner      CommandRunner
	observer    CommandEventObserver
	formatter   CommandMessageFormatter
	sopsCommand CommandName
}

// NewShellExecutor constructs a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, options ...ExecutorOption) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	executor := &ShellExecutor{
		logger:      logger,
		runner:      runner,
		observer:    noopCommandEventObserver{},
		sopsCommand: CommandSops,
	}
	for _, option := range options {
		if option != nil {
			option(executor)
		}
	}
	return executor, nil
}

// Execute runs the command and returns its result. Non-zero exit codes yield CommandFailedError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.logger.Debug(
		executor.formatter.BuildStartedMessage(command),
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
	)
	executor.observer.CommandStarted(command)

	executionResult, runError := executor.runner.Run(executionContext, command)
	if runError != nil {
		executor.logger.Warn(
			executor.formatter.BuildExecutionFailureMessage(command, runError),
			zap.String(logFieldCommandConstant, string(command.Name)),
			zap.Error(runError),
		)
		executor.observer.CommandExecutionFailed(command, runError)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	executor.observer.CommandCompleted(command, executionResult)

	if executionResult.ExitCode != 0 {
		executor.logger.Warn(
			executor.formatter.BuildFailureMessage(command, executionResult),
			zap.String(logFieldCommandConstant, string(command.Name)),
			zap.Int(logFieldExitCodeConstant, executionResult.ExitCode),
			zap.String(logFieldStandardErrorConstant, strings.TrimSpace(executionResult.StandardError)),
		)
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logger.Debug(
		executor.formatter.BuildSuccessMessage(command),
		zap.String(logFieldCommandConstant, string(command.Name)),
	)
	return executionResult, nil
}

// ExecuteSops runs sops with the provided details.
func (executor *ShellExecutor) ExecuteSops(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: executor.sopsCommand, Details: details})
}
