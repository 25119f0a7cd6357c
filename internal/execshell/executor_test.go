package execshell_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/flux-validator/internal/execshell"
)

const (
	testExecutionSuccessCaseNameConstant         = "success"
	testExecutionFailureCaseNameConstant         = "failure_exit_code"
	testExecutionRunnerErrorCaseNameConstant     = "runner_error"
	testLoggerInitializationCaseNameConstant     = "logger_validation"
	testRunnerInitializationCaseNameConstant     = "runner_validation"
	testSuccessfulInitializationCaseNameConstant = "successful_initialization"
	testManifestPathConstant                     = "clusters/prod/secret-sops.yml"
	testStandardErrorOutputConstant              = "failed to get the data key"
	testCustomSopsBinaryConstant                 = "/opt/bin/sops"
)

type recordingCommandRunner struct {
	executionResult  execshell.ExecutionResult
	executionError   error
	recordedCommands []execshell.ShellCommand
}

func (runner *recordingCommandRunner) Run(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.recordedCommands = append(runner.recordedCommands, command)
	return runner.executionResult, runner.executionError
}

type recordingObserver struct {
	started   int
	completed int
	failed    int
}

func (observer *recordingObserver) CommandStarted(execshell.ShellCommand) { observer.started++ }

func (observer *recordingObserver) CommandCompleted(execshell.ShellCommand, execshell.ExecutionResult) {
	observer.completed++
}

func (observer *recordingObserver) CommandExecutionFailed(execshell.ShellCommand, error) {
	observer.failed++
}

func TestShellExecutorInitializationValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		logger        *zap.Logger
		runner        execshell.CommandRunner
		expectError   error
		expectSuccess bool
	}{
		{
			name:        testLoggerInitializationCaseNameConstant,
			logger:      nil,
			runner:      &recordingCommandRunner{},
			expectError: execshell.ErrLoggerNotConfigured,
		},
		{
			name:        testRunnerInitializationCaseNameConstant,
			logger:      zap.NewNop(),
			runner:      nil,
			expectError: execshell.ErrCommandRunnerNotConfigured,
		},
		{
			name:          testSuccessfulInitializationCaseNameConstant,
			logger:        zap.NewNop(),
			runner:        &recordingCommandRunner{},
			expectSuccess: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor, creationError := execshell.NewShellExecutor(testCase.logger, testCase.runner)
			if testCase.expectSuccess {
				require.NoError(testInstance, creationError)
				require.NotNil(testInstance, executor)
				return
			}
			require.ErrorIs(testInstance, creationError, testCase.expectError)
		})
	}
}

func TestShellExecutorExecuteBehavior(testInstance *testing.T) {
	testCases := []struct {
		name              string
		runnerResult      execshell.ExecutionResult
		runnerError       error
		expectErrorType   any
		expectedLogCount  int
		expectedCompleted int
		expectedFailed    int
	}{
		{
			name: testExecutionSuccessCaseNameConstant,
			runnerResult: execshell.ExecutionResult{
				StandardOutput: "sops:\n  kms: []\n",
				ExitCode:       0,
			},
			expectedLogCount:  2,
			expectedCompleted: 1,
		},
		{
			name: testExecutionFailureCaseNameConstant,
			runnerResult: execshell.ExecutionResult{
				StandardError: testStandardErrorOutputConstant,
				ExitCode:      128,
			},
			expectErrorType:   execshell.CommandFailedError{},
			expectedLogCount:  2,
			expectedCompleted: 1,
		},
		{
			name:             testExecutionRunnerErrorCaseNameConstant,
			runnerError:      errors.New("executable file not found in $PATH"),
			expectErrorType:  execshell.CommandExecutionError{},
			expectedLogCount: 2,
			expectedFailed:   1,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			observerCore, observerLogs := observer.New(zap.DebugLevel)
			logger := zap.New(observerCore)

			recordingRunner := &recordingCommandRunner{
				executionResult: testCase.runnerResult,
				executionError:  testCase.runnerError,
			}
			eventObserver := &recordingObserver{}

			shellExecutor, creationError := execshell.NewShellExecutor(logger, recordingRunner, execshell.WithCommandEventObserver(eventObserver))
			require.NoError(testInstance, creationError)

			commandDetails := execshell.CommandDetails{Arguments: []string{"--rotate", "--add-kms", "arn:new", "--rm-kms", "arn:old", testManifestPathConstant}}
			executionResult, executionError := shellExecutor.ExecuteSops(context.Background(), commandDetails)

			if testCase.expectErrorType != nil {
				require.Error(testInstance, executionError)
				require.IsType(testInstance, testCase.expectErrorType, executionError)
				require.Empty(testInstance, executionResult.StandardOutput)
			} else {
				require.NoError(testInstance, executionError)
				require.Equal(testInstance, testCase.runnerResult.StandardOutput, executionResult.StandardOutput)
			}

			require.Len(testInstance, observerLogs.All(), testCase.expectedLogCount)
			require.Equal(testInstance, 1, eventObserver.started)
			require.Equal(testInstance, testCase.expectedCompleted, eventObserver.completed)
			require.Equal(testInstance, testCase.expectedFailed, eventObserver.failed)
		})
	}
}

func TestShellExecutorSopsBinaryOverride(testInstance *testing.T) {
	testCases := []struct {
		name            string
		options         []execshell.ExecutorOption
		expectedCommand execshell.CommandName
	}{
		{
			name:            "default_binary",
			expectedCommand: execshell.CommandSops,
		},
		{
			name:            "custom_binary",
			options:         []execshell.ExecutorOption{execshell.WithSopsBinary(testCustomSopsBinaryConstant)},
			expectedCommand: execshell.CommandName(testCustomSopsBinaryConstant),
		},
		{
			name:            "blank_override_ignored",
			options:         []execshell.ExecutorOption{execshell.WithSopsBinary("  ")},
			expectedCommand: execshell.CommandSops,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			recordingRunner := &recordingCommandRunner{}
			executor, creationError := execshell.NewShellExecutor(zap.NewNop(), recordingRunner, testCase.options...)
			require.NoError(testInstance, creationError)

			_, executionError := executor.ExecuteSops(context.Background(), execshell.CommandDetails{})
			require.NoError(testInstance, executionError)
			require.Len(testInstance, recordingRunner.recordedCommands, 1)
			require.Equal(testInstance, testCase.expectedCommand, recordingRunner.recordedCommands[0].Name)
		})
	}
}

func TestCommandFailedErrorIncludesStandardError(testInstance *testing.T) {
	failure := execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandSops},
		Result:  execshell.ExecutionResult{ExitCode: 128, StandardError: "  " + testStandardErrorOutputConstant + "\n"},
	}
	require.Equal(testInstance, "sops exited with code 128: "+testStandardErrorOutputConstant, failure.Error())
}
