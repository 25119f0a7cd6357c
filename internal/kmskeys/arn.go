package kmskeys

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
)

const (
	kmsServiceNameConstant      = "kms"
	keyResourcePrefixConstant   = "key/"
	aliasResourcePrefixConstant = "alias/"
	invalidARNErrorTemplate     = "%w: %q: %v"
	unexpectedServiceTemplate   = "%w: %q: service %q"
	unexpectedResourceTemplate  = "%w: %q: resource %q"
)

var (
	// ErrInvalidKeyARN indicates a value is not a parseable ARN.
	ErrInvalidKeyARN = errors.New("invalid KMS key ARN")
	// ErrNotKMSKey indicates an ARN that does not identify a KMS key or alias.
	ErrNotKMSKey = errors.New("ARN does not identify a KMS key")
)

// ParseKeyARN parses value and requires it to name a KMS key or alias.
func ParseKeyARN(value string) (arn.ARN, error) {
	trimmedValue := strings.TrimSpace(value)
	parsed, parseError := arn.Parse(trimmedValue)
	if parseError != nil {
		return arn.ARN{}, fmt.Errorf(invalidARNErrorTemplate, ErrInvalidKeyARN, trimmedValue, parseError)
	}
	if parsed.Service != kmsServiceNameConstant {
		return arn.ARN{}, fmt.Errorf(unexpectedServiceTemplate, ErrNotKMSKey, trimmedValue, parsed.Service)
	}
	if !strings.HasPrefix(parsed.Resource, keyResourcePrefixConstant) && !strings.HasPrefix(parsed.Resource, aliasResourcePrefixConstant) {
		return arn.ARN{}, fmt.Errorf(unexpectedResourceTemplate, ErrNotKMSKey, trimmedValue, parsed.Resource)
	}
	return parsed, nil
}

// IsAlias reports whether the parsed ARN names a key alias rather than a key.
func IsAlias(parsed arn.ARN) bool {
	return strings.HasPrefix(parsed.Resource, aliasResourcePrefixConstant)
}
