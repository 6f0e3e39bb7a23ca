package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"solva-wallet/internal/errs"
)

const MinUsernameLength = 3

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	txHashRegex   = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	urlRegex      = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errs.ErrValidation, fmt.Sprintf(format, args...))
}

// Message returns the user-facing part of a validation error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimPrefix(err.Error(), errs.ErrValidation.Error()+": ")
}

// ValidateUsername checks the registration format rule: at least three
// characters, letters and digits only.
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return invalid("username must be at least %d characters long", MinUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return invalid("username can only contain letters and numbers")
	}
	return nil
}

// ValidateAddress validates an EVM address format
func ValidateAddress(address string) error {
	if address == "" {
		return invalid("address cannot be empty")
	}
	if !common.IsHexAddress(address) || !strings.HasPrefix(strings.ToLower(address), "0x") {
		return invalid("invalid Ethereum address format")
	}
	return nil
}

// ParseAmount parses a user-entered dollar amount and checks that it is positive.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if raw == "" {
		return decimal.Zero, invalid("please enter an amount")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, invalid("please enter a valid amount")
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// ValidateAmount validates amount is positive and within reasonable bounds
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid("amount must be positive")
	}

	maxAmount := decimal.New(1, 9)
	if amount.GreaterThan(maxAmount) {
		return invalid("amount exceeds maximum allowed value")
	}

	return nil
}

// ValidateTxHash validates transaction hash format
func ValidateTxHash(txHash string) error {
	if txHash == "" {
		return invalid("transaction hash cannot be empty")
	}
	if !txHashRegex.MatchString(txHash) {
		return invalid("invalid transaction hash")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(url string) error {
	if url == "" {
		return invalid("URL cannot be empty")
	}
	if !urlRegex.MatchString(url) {
		return invalid("invalid URL format")
	}
	return nil
}
