package governor

import (
	"net"
	"strconv"

	"github.com/core-tools/hsu-governor/pkg/errors"
)

// ValidateTargetName validates target name format and constraints
func ValidateTargetName(name string) error {
	if name == "" {
		return errors.NewValidationError("target name cannot be empty", nil)
	}

	if len(name) > 64 {
		return errors.NewValidationError("target name cannot exceed 64 characters", nil)
	}

	for _, char := range name {
		if !isValidNameChar(char) {
			return errors.NewValidationError("target name contains invalid characters: only letters, numbers, hyphens, underscores, and dots are allowed", nil)
		}
	}

	return nil
}

// ValidatePort validates port number
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil)
	}
	return nil
}

// ValidateListenAddress validates a host:port listen address
func ValidateListenAddress(address string) error {
	if address == "" {
		return errors.NewValidationError("listen address cannot be empty", nil)
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return errors.NewValidationError("invalid listen address format: "+address, err)
	}

	// An empty host means all interfaces, which is fine for listening
	_ = host

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return errors.NewValidationError("invalid port in address: "+address, err)
	}

	if err := ValidatePort(port); err != nil {
		return errors.NewValidationError("invalid port in address: "+address, err)
	}

	return nil
}

// Helper function to check if character is valid for a target name
func isValidNameChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '-' || char == '_' || char == '.'
}
