package kmskeys

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"go.uber.org/zap"
)

const (
	loadConfigurationErrorTemplate = "failed to load AWS configuration: %w"
	describeKeyErrorTemplate       = "unable to describe KMS key %s: %w"
	keyNotUsableErrorTemplate      = "%w: %s is %s"
	keyVerifiedMessageConstant     = "Verified KMS key"
	keyARNFieldNameConstant        = "kms_arn"
	keyStateFieldNameConstant      = "key_state"
	missingKeyMetadataState        = "unknown"
)

var (
	// ErrKeyNotUsable indicates the key exists but cannot encrypt new data.
	ErrKeyNotUsable = errors.New("KMS key is not enabled")
	// ErrKeyDescriberNotConfigured indicates the verifier was constructed without a client.
	ErrKeyDescriberNotConfigured = errors.New("KMS client not configured")
)

// KeyDescriber is the subset of the KMS API used by Verifier.
type KeyDescriber interface {
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
}

// Verifier checks that a KMS key is enabled before manifests are moved to it.
type Verifier struct {
	client KeyDescriber
	logger *zap.Logger
}

// NewVerifier constructs a Verifier around client.
func NewVerifier(client KeyDescriber, logger *zap.Logger) (*Verifier, error) {
	if client == nil {
		return nil, ErrKeyDescriberNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{client: client, logger: logger}, nil
}

// NewVerifierFromEnvironment loads the default AWS configuration chain. A blank region
// falls back to the region embedded in keyARN.
func NewVerifierFromEnvironment(ctx context.Context, region string, keyARN string, logger *zap.Logger) (*Verifier, error) {
	if len(region) == 0 {
		if parsed, parseError := ParseKeyARN(keyARN); parseError == nil {
			region = parsed.Region
		}
	}

	var configurationOptions []func(*config.LoadOptions) error
	if len(region) > 0 {
		configurationOptions = append(configurationOptions, config.WithRegion(region))
	}

	awsConfiguration, loadError := config.LoadDefaultConfig(ctx, configurationOptions...)
	if loadError != nil {
		return nil, fmt.Errorf(loadConfigurationErrorTemplate, loadError)
	}
	return NewVerifier(kms.NewFromConfig(awsConfiguration), logger)
}

// Verify parses keyARN and requires the key to be in the Enabled state.
func (verifier *Verifier) Verify(ctx context.Context, keyARN string) error {
	parsed, parseError := ParseKeyARN(keyARN)
	if parseError != nil {
		return parseError
	}
	normalizedARN := parsed.String()

	output, describeError := verifier.client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(normalizedARN)})
	if describeError != nil {
		return fmt.Errorf(describeKeyErrorTemplate, normalizedARN, describeError)
	}
	if output == nil || output.KeyMetadata == nil {
		return fmt.Errorf(keyNotUsableErrorTemplate, ErrKeyNotUsable, normalizedARN, missingKeyMetadataState)
	}
	if output.KeyMetadata.KeyState != types.KeyStateEnabled {
		return fmt.Errorf(keyNotUsableErrorTemplate, ErrKeyNotUsable, normalizedARN, output.KeyMetadata.KeyState)
	}

	verifier.logger.Debug(keyVerifiedMessageConstant,
		zap.String(keyARNFieldNameConstant, normalizedARN),
		zap.String(keyStateFieldNameConstant, string(output.KeyMetadata.KeyState)))
	return nil
}
