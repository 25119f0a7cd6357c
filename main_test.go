package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	integrationBinaryNameConstant      = "flux-validator"
	integrationBuildTimeoutConstant    = 2 * time.Minute
	integrationRunTimeoutConstant      = 30 * time.Second
	integrationSourceKeyConstant       = "arn:aws:kms:eu-west-1:111122223333:key/source"
	integrationTargetKeyConstant       = "arn:aws:kms:eu-west-1:111122223333:key/target"
	integrationSopsBinaryEnvironment   = "FLUXVALIDATOR_ROTATION_SOPS_BINARY"
	integrationTargetKeyEnvironment    = "SOPS_KMS_ARN"
	integrationPrefixedKeyEnvironment  = "FLUXVALIDATOR_ROTATION_KMS_ARN"
	integrationLogFormatEnvironment    = "FLUXVALIDATOR_COMMON_LOG_FORMAT"
	integrationStructuredFormatLiteral = "structured"
	fakeSopsScriptConstant             = "#!/bin/sh\n# arguments: --rotate --add-kms NEW --rm-kms OLD --input-type yaml --output-type yaml PATH\nsed \"s|$5|$3|g\" \"${10}\"\n"
	encryptedFixtureTemplateConstant   = "kind: Secret\nmetadata:\n  name: %s\nsops:\n  kms:\n    - arn: %s\n"
)

func buildIntegrationBinary(testInstance *testing.T) string {
	testInstance.Helper()
	if testing.Short() {
		testInstance.Skip("skipping binary build in short mode")
	}
	if runtime.GOOS == "windows" {
		testInstance.Skip("fake sops script requires a POSIX shell")
	}

	repositoryRoot, workingDirectoryError := os.Getwd()
	require.NoError(testInstance, workingDirectoryError)

	binaryPath := filepath.Join(testInstance.TempDir(), integrationBinaryNameConstant)
	buildContext, cancel := context.WithTimeout(context.Background(), integrationBuildTimeoutConstant)
	defer cancel()

	buildCommand := exec.CommandContext(buildContext, "go", "build", "-o", binaryPath, ".")
	buildCommand.Dir = repositoryRoot
	buildOutput, buildError := buildCommand.CombinedOutput()
	require.NoError(testInstance, buildError, string(buildOutput))
	return binaryPath
}

func runIntegrationBinary(testInstance *testing.T, binaryPath string, environment map[string]string, arguments ...string) (string, string, int) {
	testInstance.Helper()
	executionContext, cancel := context.WithTimeout(context.Background(), integrationRunTimeoutConstant)
	defer cancel()

	command := exec.CommandContext(executionContext, binaryPath, arguments...)
	command.Dir = testInstance.TempDir()
	command.Env = append([]string{}, os.Environ()...)
	command.Env = append(command.Env, integrationPrefixedKeyEnvironment+"=")
	for name, value := range environment {
		command.Env = append(command.Env, name+"="+value)
	}
	var standardOutput bytes.Buffer
	var standardError bytes.Buffer
	command.Stdout = &standardOutput
	command.Stderr = &standardError

	runError := command.Run()
	exitCode := 0
	var exitError *exec.ExitError
	if errors.As(runError, &exitError) {
		exitCode = exitError.ExitCode()
	} else {
		require.NoError(testInstance, runError)
	}
	return standardOutput.String(), standardError.String(), exitCode
}

func writeFixture(testInstance *testing.T, path string, content string, permissions os.FileMode) {
	testInstance.Helper()
	require.NoError(testInstance, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(testInstance, os.WriteFile(path, []byte(content), permissions))
}

func encryptedFixture(name string, keyARN string) string {
	return fmt.Sprintf(encryptedFixtureTemplateConstant, name, keyARN)
}

func TestBinaryReportsAndRotates(testInstance *testing.T) {
	binaryPath := buildIntegrationBinary(testInstance)

	toolsDirectory := testInstance.TempDir()
	fakeSopsPath := filepath.Join(toolsDirectory, "sops")
	writeFixture(testInstance, fakeSopsPath, fakeSopsScriptConstant, 0o755)

	manifestRoot := testInstance.TempDir()
	writeFixture(testInstance, filepath.Join(manifestRoot, "apps", "a.yml"), encryptedFixture("foo", integrationSourceKeyConstant), 0o640)
	writeFixture(testInstance, filepath.Join(manifestRoot, "infra", "b.yaml"), encryptedFixture("foo", integrationTargetKeyConstant), 0o600)

	environment := map[string]string{
		integrationSopsBinaryEnvironment: fakeSopsPath,
		integrationTargetKeyEnvironment:  integrationTargetKeyConstant,
		integrationLogFormatEnvironment:  integrationStructuredFormatLiteral,
	}

	reportOutput, _, reportExitCode := runIntegrationBinary(testInstance, binaryPath, environment, manifestRoot)
	require.Equal(testInstance, 2, reportExitCode)
	require.Contains(testInstance, reportOutput, "Duped names\n└── foo\n    ├── apps/a.yml\n    └── infra/b.yaml\n")

	rotationOutput, rotationDiagnostics, rotationExitCode := runIntegrationBinary(testInstance, binaryPath, environment, manifestRoot, "--rotate")
	require.Equal(testInstance, 2, rotationExitCode, rotationDiagnostics)
	require.Contains(testInstance, rotationOutput, "Rotation "+integrationSourceKeyConstant+" -> "+integrationTargetKeyConstant+"\n└── succeeded\n    └── apps/a.yml\n")

	rotatedContent, readError := os.ReadFile(filepath.Join(manifestRoot, "apps", "a.yml"))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, encryptedFixture("foo", integrationTargetKeyConstant), string(rotatedContent))

	rotatedInfo, statError := os.Stat(filepath.Join(manifestRoot, "apps", "a.yml"))
	require.NoError(testInstance, statError)
	require.Equal(testInstance, os.FileMode(0o640), rotatedInfo.Mode().Perm())

	_, _, secondRotationExitCode := runIntegrationBinary(testInstance, binaryPath, environment, manifestRoot, "--rotate")
	require.Equal(testInstance, 5, secondRotationExitCode)
}

func TestBinaryRejectsRotateWithoutKey(testInstance *testing.T) {
	binaryPath := buildIntegrationBinary(testInstance)

	manifestRoot := testInstance.TempDir()
	writeFixture(testInstance, filepath.Join(manifestRoot, "a.yml"), encryptedFixture("foo", integrationSourceKeyConstant), 0o644)

	_, diagnostics, exitCode := runIntegrationBinary(testInstance, binaryPath, map[string]string{integrationTargetKeyEnvironment: ""}, manifestRoot, "--rotate")
	require.Equal(testInstance, 1, exitCode)
	require.Contains(testInstance, diagnostics, "--rotate requires a target key")
}
